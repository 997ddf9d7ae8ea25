package vault

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/bre/mailfile/internal/codec"
	"github.com/bre/mailfile/internal/mailstore"
)

// pendingWrite is one staged-but-unflushed file version. It carries the
// codec options active when it was staged, not whatever options happen
// to be active when Flush eventually runs: a nested Scope that
// transactionally toggles encryption must not have its writes re-encoded
// under the parent's mode just because the parent's Exit is what
// triggers the flush.
type pendingWrite struct {
	Payload  []byte
	Metadata map[string]any
	Opts     codec.Options
}

// writeBuffer is the component E Write Buffer: a mapping of path to its
// most recently staged (but not yet appended) contents, plus a running
// byte total used by the size-bounded flush policy.
type writeBuffer struct {
	mu    sync.Mutex
	items map[string]pendingWrite
	bytes int
}

func newWriteBuffer() *writeBuffer {
	return &writeBuffer{items: make(map[string]pendingWrite)}
}

// Stage records payload/metadata/opts as path's pending write, replacing
// whatever was previously staged for that path.
func (wb *writeBuffer) Stage(path string, payload []byte, metadata map[string]any, opts codec.Options) {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	if old, ok := wb.items[path]; ok {
		wb.bytes -= len(old.Payload)
	}
	wb.items[path] = pendingWrite{Payload: payload, Metadata: metadata, Opts: opts}
	wb.bytes += len(payload)
}

// Get returns path's pending write, if any.
func (wb *writeBuffer) Get(path string) (pendingWrite, bool) {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	pw, ok := wb.items[path]
	return pw, ok
}

// Drop discards path's pending write without flushing it.
func (wb *writeBuffer) Drop(path string) {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	if old, ok := wb.items[path]; ok {
		wb.bytes -= len(old.Payload)
		delete(wb.items, path)
	}
}

// TotalBytes returns the sum of every staged payload's length.
func (wb *writeBuffer) TotalBytes() int {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return wb.bytes
}

// Len returns the number of staged-but-unflushed paths.
func (wb *writeBuffer) Len() int {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return len(wb.items)
}

// Flush encodes and appends every pending write, each under the codec
// options it was staged with. A write that fails to encode or append is
// left in the buffer for a later retry; Flush keeps going rather than
// aborting, and reports happy=false if anything was left behind.
func (wb *writeBuffer) Flush(ctx context.Context, store mailstore.Store, folder string, logger *slog.Logger) (happy bool, err error) {
	wb.mu.Lock()
	paths := make([]string, 0, len(wb.items))
	for p := range wb.items {
		paths = append(paths, p)
	}
	wb.mu.Unlock()
	sort.Strings(paths)

	happy = true
	for _, path := range paths {
		wb.mu.Lock()
		pw, ok := wb.items[path]
		wb.mu.Unlock()
		if !ok {
			continue // raced with a concurrent Drop/Stage; nothing to flush
		}

		raw, encErr := codec.Encode(codec.Object{Path: path, Payload: pw.Payload, Metadata: pw.Metadata}, pw.Opts)
		if encErr != nil {
			logger.Warn("write buffer: encode failed, leaving staged for retry", "path", path, "err", encErr)
			happy = false
			continue
		}

		if _, appErr := store.Append(ctx, folder, raw); appErr != nil {
			logger.Warn("write buffer: append rejected, leaving staged for retry", "path", path, "err", appErr)
			happy = false
			continue
		}

		wb.mu.Lock()
		if cur, ok := wb.items[path]; ok {
			wb.bytes -= len(cur.Payload)
			delete(wb.items, path)
		}
		wb.mu.Unlock()
	}
	return happy, nil
}
