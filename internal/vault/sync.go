package vault

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bre/mailfile/internal/codec"
	"github.com/bre/mailfile/internal/index"
	"github.com/bre/mailfile/internal/mailstore"
)

// peekRange is how much of a message the reverse scan fetches before
// deciding whether it needs the full body: the first 1024 bytes, which
// must hold the whole X-Mailfile header for the message to be read from
// the peek.
const peekRange = 1024

// Summary reports what a Synchronize call actually did, for callers
// that want to log or test against it.
type Summary struct {
	Scanned         int
	PathsUpdated    int
	PathsDeleted    int
	VersionsExpired int
	SnapshotWritten bool
	SnapshotLoaded  bool
}

// engine holds the mutable state a Session accumulates across scopes:
// the index and the set of sequences already folded into it. It is
// created once per Session and reused by every Scope the session opens,
// since rescans are bounded by what's already in seen.
type engine struct {
	idx  *index.Index
	seen map[mailstore.Seq]bool

	sinceSnapshot int // new sequences folded in since the last snapshot write
}

func newEngine() *engine {
	return &engine{idx: index.New(), seen: make(map[mailstore.Seq]bool)}
}

// synchronizeLocked runs the full reverse-scan sync algorithm against
// store/folder. Callers must already hold the session lock; this method
// never acquires it itself. It mutates e.idx and e.seen in place.
func synchronizeLocked(ctx context.Context, e *engine, store mailstore.Store, folder string, opts codec.Options, snapshotDistance int, logger *slog.Logger) (Summary, error) {
	var sum Summary

	if _, err := store.Select(ctx, folder); err != nil {
		return sum, fmt.Errorf("vault: select %q: %w", folder, err)
	}

	existing, err := store.SearchAll(ctx)
	if err != nil {
		return sum, fmt.Errorf("vault: search all: %w", err)
	}
	existingSet := make(map[mailstore.Seq]bool, len(existing))
	for _, sq := range existing {
		existingSet[sq] = true
	}

	sort.Slice(existing, func(i, j int) bool { return existing[i] > existing[j] })

	snapshotIngested := false
	for _, seq := range existing {
		if e.seen[seq] {
			// Everything below an already-seen sequence was folded into
			// the index on an earlier sync (or a loaded snapshot); the
			// scan can stop here.
			break
		}

		raw, err := store.Fetch(ctx, seq, &mailstore.Range{Length: peekRange})
		if err != nil {
			logger.Warn("vault: sync: fetch failed, skipping", "seq", seq, "err", err)
			e.seen[seq] = true
			continue
		}

		fn, metadata, err := codec.DecodeHeader(raw, opts)
		if err != nil {
			logger.Warn("vault: sync: non-mailfile or corrupt message, skipping", "seq", seq, "err", err)
			e.seen[seq] = true
			continue
		}
		path := index.NormalizePath(fn)
		e.seen[seq] = true
		sum.Scanned++

		if path == SnapshotPath {
			if snapshotIngested {
				continue // only the newest snapshot object matters
			}
			full, err := store.Fetch(ctx, seq, nil)
			if err != nil {
				logger.Warn("vault: sync: snapshot fetch failed", "seq", seq, "err", err)
				continue
			}
			obj, err := codec.Decode(full, opts, SnapshotPath)
			if err != nil {
				logger.Warn("vault: sync: snapshot decode failed", "seq", seq, "err", err)
				continue
			}
			doc, err := decodeSnapshot(obj.Payload)
			if err != nil {
				logger.Warn("vault: sync: snapshot payload decode failed", "seq", seq, "err", err)
				continue
			}
			ingestSnapshot(e, doc, existingSet)
			e.idx.Put(SnapshotPath, index.Entry{LatestSeq: seq, Metadata: map[string]any{}, Versions: map[mailstore.Seq]bool{seq: true}})
			snapshotIngested = true
			sum.SnapshotLoaded = true
			continue
		}

		delete(metadata, "fn")
		cur, ok := e.idx.Get(path)
		if !ok {
			e.idx.Put(path, index.Entry{
				LatestSeq: seq,
				Metadata:  metadata,
				Versions:  map[mailstore.Seq]bool{seq: true},
			})
			sum.PathsUpdated++
			continue
		}

		versions := cur.Versions
		if versions == nil {
			versions = make(map[mailstore.Seq]bool)
		}
		versions[seq] = true
		if seq > cur.LatestSeq {
			cur.LatestSeq = seq
			cur.Metadata = metadata
		}
		cur.Versions = versions
		e.idx.Put(path, cur)
		sum.PathsUpdated++
	}

	deletable, expired := cleanupLocked(e, existingSet)
	sum.VersionsExpired = expired
	if len(deletable) > 0 {
		if err := store.StoreDelete(ctx, deletable); err != nil {
			logger.Warn("vault: sync: store delete failed, retrying on next cleanup", "err", err)
		} else if err := store.Expunge(ctx); err != nil {
			logger.Warn("vault: sync: expunge failed, retrying on next cleanup", "err", err)
		} else {
			for _, sq := range deletable {
				delete(e.seen, sq)
			}
			sum.PathsDeleted = len(deletable)
		}
	}

	for sq := range e.seen {
		if !existingSet[sq] {
			delete(e.seen, sq)
		}
	}

	e.sinceSnapshot += sum.Scanned
	if snapshotDistance > 0 && e.sinceSnapshot >= snapshotDistance {
		if err := writeSnapshotLocked(ctx, e, store, folder, opts); err != nil {
			return sum, err
		}
		sum.SnapshotWritten = true
	}

	return sum, nil
}

// writeSnapshotLocked encodes the engine's current index/seen state and
// appends it as a new snapshot object, resetting sinceSnapshot. Callers
// must already hold the session lock.
func writeSnapshotLocked(ctx context.Context, e *engine, store mailstore.Store, folder string, opts codec.Options) error {
	raw, err := encodeSnapshot(e.idx, e.seen)
	if err != nil {
		return fmt.Errorf("vault: encode snapshot: %w", err)
	}
	obj := codec.Object{Path: SnapshotPath, Payload: raw, Metadata: map[string]any{}}
	body, err := codec.Encode(obj, opts)
	if err != nil {
		return fmt.Errorf("vault: encode snapshot object: %w", err)
	}
	seq, err := store.Append(ctx, folder, body)
	if err != nil {
		return fmt.Errorf("vault: append snapshot: %w", err)
	}
	e.seen[seq] = true
	e.idx.Put(SnapshotPath, index.Entry{LatestSeq: seq, Metadata: map[string]any{}, Versions: map[mailstore.Seq]bool{seq: true}})
	e.sinceSnapshot = 0
	return nil
}

// cleanupLocked enforces per-path version retention and returns the
// sequences that are no longer referenced by any path's retained
// version set and therefore safe to delete from the backing store.
//
// Retention order: for each path, intersect its version set with the
// sequences actually present in the store (existingSet), THEN take the
// most recent `wanted` of those live survivors. Intersecting first
// maximizes how many live versions get retained when older entries in
// the version set have already vanished from the store for other
// reasons (e.g. a prior partial cleanup).
func cleanupLocked(e *engine, existingSet map[mailstore.Seq]bool) (deletable []mailstore.Seq, expired int) {
	keepers := make(map[mailstore.Seq]bool)

	for _, path := range e.idx.Paths() {
		entry, ok := e.idx.Get(path)
		if !ok {
			continue
		}

		live := make([]mailstore.Seq, 0, len(entry.Versions))
		for sq := range entry.Versions {
			if existingSet[sq] {
				live = append(live, sq)
			}
		}
		sort.Slice(live, func(i, j int) bool { return live[i] > live[j] })

		wanted := defaultVersions
		if v, ok := entry.Metadata["versions"]; ok {
			if n, ok := asInt(v); ok && n > 0 {
				wanted = n
			}
		}
		if wanted > len(live) {
			wanted = len(live)
		}

		kept := live[:wanted]
		keptSet := make(map[mailstore.Seq]bool, len(kept))
		for _, sq := range kept {
			keptSet[sq] = true
			keepers[sq] = true
		}
		expired += len(entry.Versions) - len(keptSet)

		if len(kept) == 0 {
			e.idx.Delete(path)
			continue
		}
		entry.LatestSeq = kept[0]
		entry.Versions = keptSet
		e.idx.Put(path, entry)
	}

	for sq := range e.seen {
		if !keepers[sq] && existingSet[sq] {
			deletable = append(deletable, sq)
		}
	}
	sort.Slice(deletable, func(i, j int) bool { return deletable[i] < deletable[j] })
	return deletable, expired
}

// ingestSnapshot merges a loaded snapshot document into e, skipping any
// record whose leading sequence is no longer present in the store: the
// substitute candidate is the highest still-live sequence in that
// record's version list, and the record is dropped entirely if none of
// its versions survive.
func ingestSnapshot(e *engine, doc snapshotDoc, existingSet map[mailstore.Seq]bool) {
	for _, sq := range doc.Seen {
		if existingSet[sq] {
			e.seen[sq] = true
		}
	}

	for path, rec := range doc.Tree {
		liveVersions := make(map[mailstore.Seq]bool)
		var liveSorted []mailstore.Seq
		for _, sq := range rec.Versions {
			if existingSet[sq] {
				liveVersions[sq] = true
				liveSorted = append(liveSorted, sq)
			}
		}
		if len(liveSorted) == 0 {
			continue
		}
		sort.Slice(liveSorted, func(i, j int) bool { return liveSorted[i] < liveSorted[j] })

		candidateSeq := rec.Seq
		if !existingSet[candidateSeq] {
			candidateSeq = liveSorted[len(liveSorted)-1]
		}

		cur, ok := e.idx.Get(path)
		if !ok || candidateSeq > cur.LatestSeq {
			merged := liveVersions
			if ok {
				for sq := range cur.Versions {
					merged[sq] = true
				}
			}
			metadata := rec.Metadata
			if candidateSeq != rec.Seq {
				// The snapshot's own metadata belonged to a sequence
				// that's gone; keep whatever the index already has for
				// this path rather than attribute stale metadata to a
				// different sequence.
				if ok {
					metadata = cur.Metadata
				}
			}
			e.idx.Put(path, index.Entry{LatestSeq: candidateSeq, Metadata: metadata, Versions: merged})
		} else {
			merged := cur.Versions
			if merged == nil {
				merged = make(map[mailstore.Seq]bool)
			}
			for sq := range liveVersions {
				merged[sq] = true
			}
			cur.Versions = merged
			e.idx.Put(path, cur)
		}
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
