package vault

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/bre/mailfile/internal/maildir"
	"github.com/bre/mailfile/internal/vaultcrypto"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, dir string, cfg Config) *Session {
	t.Helper()
	store := maildir.New(dir)
	return NewSession(store, cfg, testLogger())
}

func writeFile(t *testing.T, sc *Scope, path, mode string, content []byte) {
	t.Helper()
	h, err := sc.Open(path, mode)
	if err != nil {
		t.Fatalf("Open(%q, %q): %v", path, mode, err)
	}
	if _, err := h.Write(content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func readFile(t *testing.T, sc *Scope, path string) []byte {
	t.Helper()
	h, err := sc.Open(path, "r")
	if err != nil {
		t.Fatalf("Open(%q, r): %v", path, err)
	}
	defer h.Close()
	data, err := io.ReadAll(h)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return data
}

func TestWriteReadRoundTripClear(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig("files")
	sess := newTestSession(t, dir, cfg)

	sc, err := sess.Enter(context.Background())
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}

	writeFile(t, sc, "/docs/hello.txt", "w", []byte("hello, world"))
	got := readFile(t, sc, "docs/hello.txt")
	if string(got) != "hello, world" {
		t.Fatalf("got %q", got)
	}

	if err := sc.Exit(); err != nil {
		t.Fatalf("Exit: %v", err)
	}
}

func TestWriteReadRoundTripEncrypted(t *testing.T) {
	dir := t.TempDir()
	key := vaultcrypto.DeriveKey([]byte("a passphrase"))
	cfg := DefaultConfig("files")
	cfg.Encrypted = true
	cfg.Fernet = vaultcrypto.New(key)
	sess := newTestSession(t, dir, cfg)

	sc, err := sess.Enter(context.Background())
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}

	writeFile(t, sc, "secret.txt", "w", []byte("top secret payload"))
	got := readFile(t, sc, "secret.txt")
	if string(got) != "top secret payload" {
		t.Fatalf("got %q", got)
	}
	if err := sc.Exit(); err != nil {
		t.Fatalf("Exit: %v", err)
	}

	// A fresh session with a wrong key must not silently succeed.
	wrongKey := vaultcrypto.DeriveKey([]byte("not the passphrase"))
	badCfg := cfg
	badCfg.Fernet = vaultcrypto.New(wrongKey)
	badSess := newTestSession(t, dir, badCfg)
	badScope, err := badSess.Enter(context.Background())
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	defer badScope.Exit()
	if _, err := badScope.Open("secret.txt", "r"); err == nil {
		t.Fatal("expected decrypt with wrong key to fail")
	}
}

func TestVersionRetention(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig("files")
	sess := newTestSession(t, dir, cfg)

	sc, err := sess.Enter(context.Background())
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}

	for i := 0; i < 3; i++ {
		writeFile(t, sc, "notes.txt", "w", []byte{byte('a' + i)})
	}

	// The last write is still buffered; this Synchronize appends it and
	// its cleanup deletes the version it supersedes.
	sum, err := sc.Synchronize()
	if err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	if sum.PathsDeleted == 0 {
		t.Fatalf("expected cleanup to delete superseded versions, summary=%+v", sum)
	}

	got := readFile(t, sc, "notes.txt")
	if len(got) != 1 || got[0] != 'c' {
		t.Fatalf("expected latest version 'c', got %q", got)
	}

	entry, ok := sess.eng.idx.Get("notes.txt")
	if !ok {
		t.Fatal("expected index entry for notes.txt")
	}
	if len(entry.Versions) != 1 {
		t.Fatalf("expected exactly 1 retained version, got %d", len(entry.Versions))
	}

	if err := sc.Exit(); err != nil {
		t.Fatalf("Exit: %v", err)
	}
}

func TestTwoWriterLastWins(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig("files")

	sessA := newTestSession(t, dir, cfg)
	scA, err := sessA.Enter(context.Background())
	if err != nil {
		t.Fatalf("Enter A: %v", err)
	}
	writeFile(t, scA, "shared.txt", "w", []byte("from A"))
	if err := scA.Exit(); err != nil {
		t.Fatalf("Exit A: %v", err)
	}

	sessB := newTestSession(t, dir, cfg)
	scB, err := sessB.Enter(context.Background())
	if err != nil {
		t.Fatalf("Enter B: %v", err)
	}
	writeFile(t, scB, "shared.txt", "w", []byte("from B, and longer"))
	if err := scB.Exit(); err != nil {
		t.Fatalf("Exit B: %v", err)
	}

	sessC := newTestSession(t, dir, cfg)
	scC, err := sessC.Enter(context.Background())
	if err != nil {
		t.Fatalf("Enter C: %v", err)
	}
	got := readFile(t, scC, "shared.txt")
	if string(got) != "from B, and longer" {
		t.Fatalf("expected last writer to win, got %q", got)
	}
	if err := scC.Exit(); err != nil {
		t.Fatalf("Exit C: %v", err)
	}
}

func TestSnapshotShortcut(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig("files")
	cfg.SnapshotDistance = 2

	sess := newTestSession(t, dir, cfg)
	sc, err := sess.Enter(context.Background())
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	writeFile(t, sc, "a.txt", "w", []byte("a"))
	writeFile(t, sc, "b.txt", "w", []byte("b"))
	sum, err := sc.Synchronize()
	if err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	if !sum.SnapshotWritten {
		t.Fatalf("expected a snapshot to be written once the distance threshold was crossed, summary=%+v", sum)
	}
	if err := sc.Exit(); err != nil {
		t.Fatalf("Exit: %v", err)
	}

	// A fresh session loading cold must ingest the snapshot rather than
	// re-scanning every message from scratch.
	sess2 := newTestSession(t, dir, cfg)
	sc2, err := sess2.Enter(context.Background())
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	sum2, err := sc2.Synchronize()
	if err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	if !sum2.SnapshotLoaded {
		t.Fatalf("expected cold session to load the snapshot, summary=%+v", sum2)
	}
	got := readFile(t, sc2, "b.txt")
	if string(got) != "b" {
		t.Fatalf("got %q", got)
	}
	if err := sc2.Exit(); err != nil {
		t.Fatalf("Exit: %v", err)
	}
}

func TestRemoveTombstonesThenList(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig("files")
	sess := newTestSession(t, dir, cfg)

	sc, err := sess.Enter(context.Background())
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	writeFile(t, sc, "keep.txt", "w", []byte("keep"))
	writeFile(t, sc, "gone.txt", "w", []byte("gone"))

	paths, err := sc.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths before remove, got %v", paths)
	}

	if err := sc.Remove("gone.txt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	paths, err = sc.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(paths) != 1 || paths[0] != "keep.txt" {
		t.Fatalf("expected only keep.txt after remove, got %v", paths)
	}

	if _, err := sc.Open("gone.txt", "r"); err == nil {
		t.Fatal("expected opening a tombstoned path to fail")
	}

	if err := sc.Exit(); err != nil {
		t.Fatalf("Exit: %v", err)
	}
}

func TestNestedScopeConfigOverride(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig("files")
	sess := newTestSession(t, dir, cfg)

	sc, err := sess.Enter(context.Background())
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	writeFile(t, sc, "plain.txt", "w", []byte("plain"))

	nested := sc.Enter()
	nestedCfg := nested.config()
	nestedCfg.Encrypted = true
	nestedCfg.Fernet = vaultcrypto.New(vaultcrypto.DeriveKey([]byte("nested key")))
	nested.SetConfig(nestedCfg)
	writeFile(t, nested, "secret.txt", "w", []byte("nested secret"))
	if err := nested.Exit(); err != nil {
		t.Fatalf("nested Exit: %v", err)
	}

	if sc.config().Encrypted {
		t.Fatal("parent scope's config must not be affected by a nested override")
	}

	got := readFile(t, sc, "plain.txt")
	if string(got) != "plain" {
		t.Fatalf("got %q", got)
	}

	if err := sc.Exit(); err != nil {
		t.Fatalf("Exit: %v", err)
	}
}
