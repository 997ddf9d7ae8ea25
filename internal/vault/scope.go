package vault

import (
	"context"
	"fmt"

	"github.com/bre/mailfile/internal/index"
	"github.com/bre/mailfile/internal/mailstore"
)

// Scope is a unit of work against a Session: everything done between an
// Enter and its matching Exit shares one held lock, one write buffer,
// and a config stack that can be overridden transactionally.
//
// A Scope is reentrant by construction rather than by tracking a
// goroutine id: Session.Enter is the only place that calls mu.Lock, and
// Scope.Enter (nested) returns a new Scope on the same Session whose
// config stack has one more frame, without taking the lock again, since the caller already holds
// it by virtue of having a *Scope at all. Only the outermost Exit
// actually flushes and unlocks.
type Scope struct {
	session *Session
	ctx     context.Context
	stack   []Config
}

// Enter pushes a copy of the current config as a new frame, letting the
// caller mutate it (via SetConfig) for the duration of a nested unit of
// work without affecting the parent frame. It does not re-acquire any
// lock: by holding a *Scope, the caller already has exclusive access.
func (sc *Scope) Enter() *Scope {
	top := sc.stack[len(sc.stack)-1]
	return &Scope{session: sc.session, ctx: sc.ctx, stack: append(append([]Config{}, sc.stack...), top)}
}

// Exit pops the current config frame. When this is the outermost frame
// (the one Session.Enter created), Exit also flushes the write buffer
// and releases the session's lock. Exit on a nested Scope returned by
// Scope.Enter only ever affects that nested copy's own stack and is a
// no-op on the parent's locking, since nested Scopes don't share
// backing storage for the stack slice (append copies).
func (sc *Scope) Exit() error {
	if len(sc.stack) > 1 {
		sc.stack = sc.stack[:len(sc.stack)-1]
		return nil
	}

	s := sc.session
	cfg := sc.config()
	_, err := s.wb.Flush(sc.ctx, s.store, cfg.Folder, s.logger)
	s.mu.Unlock()
	return err
}

// SetConfig replaces the current (topmost) config frame.
func (sc *Scope) SetConfig(cfg Config) {
	sc.stack[len(sc.stack)-1] = cfg
}

func (sc *Scope) config() Config {
	return sc.stack[len(sc.stack)-1]
}

// Synchronize flushes any buffered writes, then runs the reverse-scan
// sync algorithm against the scope's current folder, folding any new
// messages into the session's shared index before returning a summary
// of what changed. Flushing first ensures the scan sees everything
// staged earlier in this scope rather than only what a later Exit would
// eventually append.
func (sc *Scope) Synchronize() (Summary, error) {
	s := sc.session
	cfg := sc.config()
	if _, err := s.wb.Flush(sc.ctx, s.store, cfg.Folder, s.logger); err != nil {
		return Summary{}, err
	}
	return synchronizeLocked(sc.ctx, s.eng, s.store, cfg.Folder, cfg.codecOptions(), cfg.snapshotDistance(), s.logger)
}

// ForceSnapshot synchronizes, then writes a fresh index snapshot
// unconditionally regardless of how many sequences have been scanned
// since the last one — for an operator-triggered "snapshot now" rather
// than waiting for SnapshotDistance to be crossed naturally.
func (sc *Scope) ForceSnapshot() (Summary, error) {
	sum, err := sc.Synchronize()
	if err != nil {
		return sum, err
	}
	s := sc.session
	cfg := sc.config()
	if err := writeSnapshotLocked(sc.ctx, s.eng, s.store, cfg.Folder, cfg.codecOptions()); err != nil {
		return sum, err
	}
	sum.SnapshotWritten = true
	return sum, nil
}

// List returns every live path under prefix, synchronizing first so the
// index reflects anything appended since the last sync.
func (sc *Scope) List(prefix string) ([]string, error) {
	if _, err := sc.Synchronize(); err != nil {
		return nil, err
	}
	return sc.session.eng.idx.List(index.NormalizePath(prefix)), nil
}

// Stat returns path's current metadata without opening it.
func (sc *Scope) Stat(path string) (map[string]any, error) {
	if _, err := sc.Synchronize(); err != nil {
		return nil, err
	}
	path = index.NormalizePath(path)
	entry, ok := sc.resolveLive(path)
	if !ok {
		return nil, fmt.Errorf("vault: stat %q: %w", path, mailstore.ErrNotFound)
	}
	return entry.Metadata, nil
}

// Versions returns path's retained sequence numbers, newest last.
func (sc *Scope) Versions(path string) ([]mailstore.Seq, error) {
	if _, err := sc.Synchronize(); err != nil {
		return nil, err
	}
	path = index.NormalizePath(path)
	entry, ok := sc.session.eng.idx.Get(path)
	if !ok {
		return nil, fmt.Errorf("vault: versions %q: %w", path, mailstore.ErrNotFound)
	}
	return entry.VersionSeqs(), nil
}

// Remove tombstones path: its content is replaced with an empty payload
// and metadata carrying deleted=true (plus the path's versions setting),
// leaving prior versions subject to the normal retention policy rather
// than being unlinked immediately.
func (sc *Scope) Remove(path string) error {
	path = index.NormalizePath(path)
	if _, err := sc.Synchronize(); err != nil {
		return err
	}
	live, ok := sc.resolveLive(path)
	if !ok {
		return fmt.Errorf("vault: remove %q: %w", path, mailstore.ErrNotFound)
	}

	s := sc.session
	cfg := sc.config()
	metadata := map[string]any{"deleted": true}
	if v, ok := live.Metadata["versions"]; ok {
		metadata["versions"] = v
	}
	s.wb.Stage(path, nil, metadata, cfg.codecOptions())

	if !cfg.Buffering || s.wb.TotalBytes() >= cfg.bufferingMaxBytes() {
		if _, err := s.wb.Flush(sc.ctx, s.store, cfg.Folder, s.logger); err != nil {
			return err
		}
	}

	if entry, ok := s.eng.idx.Get(path); ok {
		entry.Metadata = metadata
		s.eng.idx.Put(path, entry)
	}
	return nil
}

// resolveLive looks up path in the index, first checking the write
// buffer (an unflushed write always wins over the last synced state),
// then the index, skipping over tombstones.
func (sc *Scope) resolveLive(path string) (index.Entry, bool) {
	s := sc.session
	if pw, ok := s.wb.Get(path); ok {
		if deleted, _ := pw.Metadata["deleted"].(bool); deleted {
			return index.Entry{}, false
		}
		return index.Entry{Metadata: pw.Metadata}, true
	}
	entry, ok := s.eng.idx.Get(path)
	if !ok || entry.Deleted() {
		return index.Entry{}, false
	}
	return entry, true
}
