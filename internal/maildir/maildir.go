// Package maildir implements a mailstore.Store backed by a local
// directory tree in the cur/new/tmp convention, mirroring the reference
// Python implementation's FilesystemIMAP test double. It requires no
// server and is useful standalone and for deterministic tests.
package maildir

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bre/mailfile/internal/fileutil"
	"github.com/bre/mailfile/internal/mailstore"
	"github.com/google/uuid"
)

// dirPerm and filePerm match the reference implementation's owner-only
// default (0o700/0o600 via the shared fileutil helpers), since in clear
// mode this tree holds plaintext payloads (and in encrypted mode,
// encryption hides content, not the local file's existence or owner
// access).
const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// Store is a maildir-style mailstore.Store rooted at a base directory.
// Each selected folder is a subdirectory of Base containing cur/, new/,
// and tmp/. Sequences are encoded into filenames as "eml-XXXXXXXX:2,<flags>".
type Store struct {
	Base string

	mu       sync.Mutex
	folder   string
	selected bool
}

// New returns a Store rooted at base. The base directory is not created
// until Create is called for a folder within it.
func New(base string) *Store {
	return &Store{Base: base}
}

func (s *Store) folderPath(folder string) string {
	return filepath.Join(s.Base, folder)
}

// Select chooses folder as active and reports how many messages it
// currently holds.
func (s *Store) Select(_ context.Context, folder string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.folderPath(folder)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return 0, fmt.Errorf("maildir: select %q: %w", folder, mailstore.ErrNotFound)
	}

	files, err := s.list(path)
	if err != nil {
		return 0, fmt.Errorf("maildir: select %q: %w", folder, err)
	}
	s.folder = folder
	s.selected = true
	return len(files), nil
}

// Create makes folder (and its cur/new/tmp subdirectories) if absent.
func (s *Store) Create(_ context.Context, folder string) error {
	path := s.folderPath(folder)
	for _, sub := range []string{"", "cur", "new", "tmp"} {
		if err := fileutil.SecureMkdirAll(filepath.Join(path, sub), dirPerm); err != nil {
			return fmt.Errorf("maildir: create %q: %w", folder, err)
		}
	}
	return nil
}

// SearchAll returns every sequence present in the selected folder.
func (s *Store) SearchAll(_ context.Context) ([]mailstore.Seq, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.selected {
		return nil, fmt.Errorf("maildir: SearchAll: no folder selected")
	}

	files, err := s.list(s.folderPath(s.folder))
	if err != nil {
		return nil, err
	}
	seqs := make([]mailstore.Seq, 0, len(files))
	for seq := range files {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

// Fetch reads the message for seq, optionally truncated to rng.Length
// bytes. Maildir messages are stored with bare-LF line endings on disk
// (matching the reference implementation) and converted to CRLF on read.
func (s *Store) Fetch(_ context.Context, seq mailstore.Seq, rng *mailstore.Range) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.selected {
		return nil, fmt.Errorf("maildir: Fetch: no folder selected")
	}

	files, err := s.list(s.folderPath(s.folder))
	if err != nil {
		return nil, err
	}
	name, ok := files[seq]
	if !ok {
		return nil, fmt.Errorf("maildir: Fetch: sequence %d: %w", seq, mailstore.ErrNotFound)
	}

	raw, err := os.ReadFile(filepath.Join(s.folderPath(s.folder), "cur", name))
	if err != nil {
		return nil, fmt.Errorf("maildir: Fetch: %w", err)
	}
	raw = bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	raw = bytes.ReplaceAll(raw, []byte("\n"), []byte("\r\n"))

	if rng != nil && rng.Length > 0 && rng.Length < len(raw) {
		raw = raw[:rng.Length]
	}
	return raw, nil
}

// Append writes message to folder, assigning it the next sequence
// (one greater than the highest sequence ever seen in that folder).
// It writes to tmp/ and renames into cur/, atomic on POSIX filesystems —
// an enrichment over the reference implementation, which writes directly
// into cur/.
func (s *Store) Append(_ context.Context, folder string, message []byte) (mailstore.Seq, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.folderPath(folder)
	files, err := s.list(path)
	if err != nil {
		return 0, fmt.Errorf("maildir: append: %w", err)
	}
	var maxSeq mailstore.Seq
	for seq := range files {
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	next := maxSeq + 1

	normalized := bytes.ReplaceAll(message, []byte("\r\n"), []byte("\n"))

	tmpName := "tmp-" + uuid.NewString()
	tmpPath := filepath.Join(path, "tmp", tmpName)
	if err := fileutil.SecureWriteFile(tmpPath, normalized, filePerm); err != nil {
		return 0, fmt.Errorf("maildir: append: write tmp: %w", err)
	}

	finalName := formatName(next, "")
	finalPath := filepath.Join(path, "cur", finalName)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("maildir: append: rename into cur: %w", err)
	}

	return next, nil
}

// StoreDelete removes the on-disk files for seqs immediately; maildir has
// no separate mark/expunge step, so this does the actual unlink and
// Expunge is a no-op.
func (s *Store) StoreDelete(_ context.Context, seqs []mailstore.Seq) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.selected {
		return fmt.Errorf("maildir: StoreDelete: no folder selected")
	}

	path := s.folderPath(s.folder)
	files, err := s.list(path)
	if err != nil {
		return err
	}
	for _, seq := range seqs {
		name, ok := files[seq]
		if !ok {
			continue
		}
		if err := os.Remove(filepath.Join(path, "cur", name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("maildir: StoreDelete: remove %q: %w", name, err)
		}
	}
	return nil
}

// Expunge is a no-op: StoreDelete already unlinked the files.
func (s *Store) Expunge(_ context.Context) error { return nil }

// list scans cur/ and new/ for "eml-"-prefixed filenames and parses out
// their sequence number.
func (s *Store) list(path string) (map[mailstore.Seq]string, error) {
	out := make(map[mailstore.Seq]string)
	for _, sub := range []string{"cur", "new"} {
		entries, err := os.ReadDir(filepath.Join(path, sub))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("list %s: %w", sub, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasPrefix(e.Name(), "eml-") {
				continue
			}
			seq, ok := parseName(e.Name())
			if !ok {
				continue
			}
			out[seq] = e.Name()
		}
	}
	return out, nil
}

// formatName renders seq as "eml-XXXXXXXX:2,<flags>", matching the
// reference implementation's _fn_fmt.
func formatName(seq mailstore.Seq, flags string) string {
	return fmt.Sprintf("eml-%08x:2,%s", uint32(seq), flags)
}

// parseName reverses formatName, tolerating any flags suffix.
func parseName(name string) (mailstore.Seq, bool) {
	rest := strings.TrimPrefix(name, "eml-")
	idx := strings.IndexByte(rest, ':')
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(rest[:idx], 16, 32)
	if err != nil {
		return 0, false
	}
	return mailstore.Seq(n), true
}
