// Package index holds the in-memory map from file path to its latest
// known version and the set of sequences the engine still retains for
// that path. It is owned exclusively by the sync engine: every mutation
// happens while the session lock is held, though dirty reads from other
// goroutines are tolerated as best-effort.
package index

import (
	"sort"
	"strings"
	"sync"

	"github.com/bre/mailfile/internal/mailstore"
)

// Entry is one path's current state: the sequence that produced its
// latest metadata, that metadata (fn and the padding key stripped; bytes
// kept), and
// every sequence the engine currently considers a retained version.
type Entry struct {
	LatestSeq mailstore.Seq
	Metadata  map[string]any
	Versions  map[mailstore.Seq]bool
}

// clone returns a deep-enough copy for safe external use (dirty reads).
func (e Entry) clone() Entry {
	md := make(map[string]any, len(e.Metadata))
	for k, v := range e.Metadata {
		md[k] = v
	}
	vs := make(map[mailstore.Seq]bool, len(e.Versions))
	for s := range e.Versions {
		vs[s] = true
	}
	return Entry{LatestSeq: e.LatestSeq, Metadata: md, Versions: vs}
}

// VersionSeqs returns the entry's retained sequences, sorted ascending.
func (e Entry) VersionSeqs() []mailstore.Seq {
	seqs := make([]mailstore.Seq, 0, len(e.Versions))
	for s := range e.Versions {
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}

// Deleted reports whether the entry's metadata carries a tombstone.
func (e Entry) Deleted() bool {
	v, _ := e.Metadata["deleted"].(bool)
	return v
}

// Index is a mapping path -> Entry with O(1) lookup and O(n)
// directory-prefix scans.
type Index struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New returns an empty Index.
func New() *Index {
	return &Index{entries: make(map[string]Entry)}
}

// Get returns the entry for path, if any.
func (ix *Index) Get(path string) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[path]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Put records e for path, creating or overwriting whatever was there.
func (ix *Index) Put(path string, e Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries[path] = e
}

// Delete removes path's entry entirely.
func (ix *Index) Delete(path string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.entries, path)
}

// Paths returns every known path, regardless of tombstone state.
func (ix *Index) Paths() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]string, 0, len(ix.entries))
	for p := range ix.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// List returns every live (non-tombstoned) path with the given prefix,
// sorted lexically. An empty prefix lists everything. A non-empty
// prefix matches at a "/" boundary (the prefix itself, or anything
// under it as a directory), so List("a") does not also return a
// sibling path like "ab/c".
func (ix *Index) List(prefix string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	prefix = strings.TrimSuffix(prefix, "/")
	dirPrefix := prefix
	if dirPrefix != "" {
		dirPrefix += "/"
	}
	var out []string
	for p, e := range ix.entries {
		if e.Deleted() {
			continue
		}
		if p == prefix || strings.HasPrefix(p, dirPrefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of entries, including tombstones.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Snapshot returns a defensive copy of the whole map, keyed by path.
func (ix *Index) Snapshot() map[string]Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[string]Entry, len(ix.entries))
	for p, e := range ix.entries {
		out[p] = e.clone()
	}
	return out
}

// NormalizePath trims leading/trailing slashes and collapses consecutive
// slashes, per the data model's FilePath rule. Paths are opaque keys;
// there are no stored directories.
func NormalizePath(p string) string {
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "/")
}
