package vault

import (
	"fmt"
	"io"
	"time"

	"github.com/bre/mailfile/internal/codec"
	"github.com/bre/mailfile/internal/index"
	"github.com/bre/mailfile/internal/mailstore"
)

// Handle is a random-access, in-memory view of one file version, opened
// from a Scope in one of the POSIX-flavored modes below. All reads and
// writes operate on an in-memory buffer; nothing reaches the backing
// store until Close (or an earlier buffering-threshold flush) stages
// and, depending on Scope config, flushes the result.
type Handle struct {
	scope    *Scope
	path     string
	mode     string
	buf      []byte
	pos      int64
	metadata map[string]any
	dirty    bool
	closed   bool
}

// Open resolves path under mode:
//   - "r", "r+": the file must already exist; its latest version is
//     fetched and decoded, and the buffer starts with that content.
//   - "a": like "r+", but the position starts at the end of the buffer;
//     a missing file is created empty rather than erroring.
//   - "w", "w+": content is always discarded on open, existing file or
//     not; the buffer starts empty.
//
// "r" and "w" reject writes and reads respectively; every other mode
// permits both.
func (sc *Scope) Open(path string, mode string) (*Handle, error) {
	path = index.NormalizePath(path)
	switch mode {
	case "r", "r+", "a", "w", "w+":
	default:
		return nil, fmt.Errorf("vault: open %q: unsupported mode %q", path, mode)
	}

	if _, err := sc.Synchronize(); err != nil {
		return nil, err
	}

	discard := mode == "w" || mode == "w+"

	h := &Handle{scope: sc, path: path, mode: mode, metadata: map[string]any{}}

	entry, exists := sc.resolveLive(path)
	if !exists && (mode == "r" || mode == "r+") {
		return nil, fmt.Errorf("vault: open %q: %w", path, mailstore.ErrNotFound)
	}

	if exists {
		h.metadata = entry.Metadata
		delete(h.metadata, "bytes")
	}

	if discard || !exists {
		h.buf = nil
	} else {
		content, metadata, err := sc.fetchContent(path)
		if err != nil {
			return nil, err
		}
		h.buf = content
		if metadata != nil {
			h.metadata = metadata
		}
	}

	if mode == "a" {
		h.pos = int64(len(h.buf))
	}
	return h, nil
}

// fetchContent fetches and decodes path's latest staged-or-stored
// version: the write buffer wins over the store if path has an
// unflushed pending write.
func (sc *Scope) fetchContent(path string) ([]byte, map[string]any, error) {
	s := sc.session
	if pw, ok := s.wb.Get(path); ok {
		return append([]byte(nil), pw.Payload...), pw.Metadata, nil
	}

	entry, ok := s.eng.idx.Get(path)
	if !ok {
		return nil, nil, fmt.Errorf("vault: fetch %q: %w", path, mailstore.ErrNotFound)
	}

	cfg := sc.config()
	if _, err := s.store.Select(sc.ctx, cfg.Folder); err != nil {
		return nil, nil, fmt.Errorf("vault: select %q: %w", cfg.Folder, err)
	}
	raw, err := s.store.Fetch(sc.ctx, entry.LatestSeq, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("vault: fetch %q: %w", path, err)
	}
	obj, err := codec.Decode(raw, cfg.codecOptions(), path)
	if err != nil {
		return nil, nil, fmt.Errorf("vault: decode %q: %w", path, err)
	}
	return obj.Payload, obj.Metadata, nil
}

func (h *Handle) writable() bool {
	return h.mode != "r"
}

func (h *Handle) readable() bool {
	return h.mode != "w"
}

// Read implements io.Reader from the handle's current position.
func (h *Handle) Read(p []byte) (int, error) {
	if h.closed {
		return 0, fmt.Errorf("vault: read %q: handle closed", h.path)
	}
	if !h.readable() {
		return 0, fmt.Errorf("vault: read %q: opened write-only", h.path)
	}
	if h.pos >= int64(len(h.buf)) {
		return 0, io.EOF
	}
	n := copy(p, h.buf[h.pos:])
	h.pos += int64(n)
	return n, nil
}

// Write implements io.Writer at the handle's current position,
// extending the buffer as needed and overwriting any existing bytes in
// range.
func (h *Handle) Write(p []byte) (int, error) {
	if h.closed {
		return 0, fmt.Errorf("vault: write %q: handle closed", h.path)
	}
	if !h.writable() {
		return 0, fmt.Errorf("vault: write %q: opened read-only", h.path)
	}
	end := h.pos + int64(len(p))
	if end > int64(len(h.buf)) {
		grown := make([]byte, end)
		copy(grown, h.buf)
		h.buf = grown
	}
	copy(h.buf[h.pos:end], p)
	h.pos = end
	h.dirty = true
	return len(p), nil
}

// Seek implements io.Seeker; SeekEnd/SeekCurrent/SeekStart per io.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = h.pos
	case io.SeekEnd:
		base = int64(len(h.buf))
	default:
		return 0, fmt.Errorf("vault: seek %q: invalid whence %d", h.path, whence)
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, fmt.Errorf("vault: seek %q: negative position", h.path)
	}
	h.pos = newPos
	return h.pos, nil
}

// Tell returns the handle's current position.
func (h *Handle) Tell() int64 { return h.pos }

// Truncate resizes the buffer to size, zero-filling any growth.
func (h *Handle) Truncate(size int64) error {
	if !h.writable() {
		return fmt.Errorf("vault: truncate %q: opened read-only", h.path)
	}
	if size < 0 {
		return fmt.Errorf("vault: truncate %q: negative size", h.path)
	}
	switch {
	case size <= int64(len(h.buf)):
		h.buf = h.buf[:size]
	default:
		grown := make([]byte, size)
		copy(grown, h.buf)
		h.buf = grown
	}
	h.dirty = true
	return nil
}

// GetValue returns a copy of the handle's entire buffer, independent of
// the current seek position.
func (h *Handle) GetValue() []byte {
	return append([]byte(nil), h.buf...)
}

// Metadata returns the handle's current metadata (excluding fn/bytes,
// which the codec manages).
func (h *Handle) Metadata() map[string]any {
	out := make(map[string]any, len(h.metadata))
	for k, v := range h.metadata {
		out[k] = v
	}
	return out
}

// SetMetadata replaces the handle's metadata wholesale, merged in on
// Close.
func (h *Handle) SetMetadata(m map[string]any) {
	h.metadata = m
	h.dirty = true
}

// Path returns the handle's normalized path.
func (h *Handle) Path() string { return h.path }

// Close stages the handle's buffer as path's new version if the handle
// was opened writable and has been written to (or truncated, or had its
// metadata replaced). A handle opened "r" or never mutated closes
// without staging anything. Staging may trigger an immediate flush if
// the scope's buffering threshold has been crossed.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	if !h.writable() || !h.dirty {
		return nil
	}

	if h.metadata == nil {
		h.metadata = map[string]any{}
	}
	h.metadata["ts"] = int(time.Now().Unix())

	sc := h.scope
	s := sc.session
	cfg := sc.config()
	s.wb.Stage(h.path, append([]byte(nil), h.buf...), h.metadata, cfg.codecOptions())

	entry := index.Entry{Metadata: h.metadata, Versions: map[mailstore.Seq]bool{}}
	if old, ok := s.eng.idx.Get(h.path); ok {
		entry.LatestSeq = old.LatestSeq
		entry.Versions = old.Versions
	}
	s.eng.idx.Put(h.path, entry)

	if !cfg.Buffering || s.wb.TotalBytes() >= cfg.bufferingMaxBytes() {
		if _, err := s.wb.Flush(sc.ctx, s.store, cfg.Folder, s.logger); err != nil {
			return err
		}
	}
	return nil
}
