package tui

import (
	"context"
	"io"
	"log/slog"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bre/mailfile/internal/maildir"
	"github.com/bre/mailfile/internal/vault"
)

func newTestScope(t *testing.T) *vault.Scope {
	t.Helper()
	dir := t.TempDir()
	store := maildir.New(dir)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sess := vault.NewSession(store, vault.DefaultConfig("INBOX"), logger)

	sc, err := sess.Enter(context.Background())
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	t.Cleanup(func() { _ = sc.Exit() })

	for _, f := range []struct{ path, content string }{
		{"docs/readme.txt", "hello world"},
		{"docs/nested/notes.txt", "nested note"},
		{"top.txt", "top level file"},
	} {
		h, err := sc.Open(f.path, "w")
		if err != nil {
			t.Fatalf("Open(%q): %v", f.path, err)
		}
		if _, err := h.Write([]byte(f.content)); err != nil {
			t.Fatalf("Write(%q): %v", f.path, err)
		}
		if err := h.Close(); err != nil {
			t.Fatalf("Close(%q): %v", f.path, err)
		}
	}

	return sc
}

func TestChildrenOfGroupsDirectoriesAndFiles(t *testing.T) {
	paths := []string{"docs/readme.txt", "docs/nested/notes.txt", "top.txt"}
	nodes := childrenOf(paths, "")

	if len(nodes) != 2 {
		t.Fatalf("len(nodes) = %d, want 2 (docs/, top.txt)", len(nodes))
	}
	if nodes[0].kind != kindDir || nodes[0].name != "docs" {
		t.Errorf("nodes[0] = %+v, want dir %q", nodes[0], "docs")
	}
	if nodes[1].kind != kindFile || nodes[1].name != "top.txt" {
		t.Errorf("nodes[1] = %+v, want file %q", nodes[1], "top.txt")
	}
}

func TestChildrenOfDescendsIntoSubdirectory(t *testing.T) {
	paths := []string{"docs/readme.txt", "docs/nested/notes.txt"}
	nodes := childrenOf(paths, "docs")

	if len(nodes) != 2 {
		t.Fatalf("len(nodes) = %d, want 2", len(nodes))
	}
	names := map[string]nodeKind{}
	for _, n := range nodes {
		names[n.name] = n.kind
	}
	if names["readme.txt"] != kindFile {
		t.Errorf("readme.txt should be a file")
	}
	if names["nested"] != kindDir {
		t.Errorf("nested should be a directory")
	}
}

func TestRefreshCmdLoadsRootListing(t *testing.T) {
	sc := newTestScope(t)
	m := New(sc, Options{Version: "test"})

	msg := m.refreshCmd()()
	refreshed, ok := msg.(refreshedMsg)
	if !ok {
		t.Fatalf("refreshCmd returned %T, want refreshedMsg", msg)
	}
	if refreshed.err != nil {
		t.Fatalf("refreshedMsg.err = %v", refreshed.err)
	}
	if len(refreshed.nodes) != 2 {
		t.Fatalf("len(nodes) = %d, want 2", len(refreshed.nodes))
	}
}

func TestLoadPreviewCmdRendersTextContent(t *testing.T) {
	sc := newTestScope(t)
	m := New(sc, Options{Version: "test"})

	msg := m.loadPreviewCmd("top.txt")()
	loaded, ok := msg.(previewLoadedMsg)
	if !ok {
		t.Fatalf("loadPreviewCmd returned %T, want previewLoadedMsg", msg)
	}
	if loaded.err != nil {
		t.Fatalf("previewLoadedMsg.err = %v", loaded.err)
	}
	if loaded.content != "top level file" {
		t.Errorf("content = %q, want %q", loaded.content, "top level file")
	}
}

func TestUpdateNavigatesIntoDirectoryAndBack(t *testing.T) {
	sc := newTestScope(t)
	m := New(sc, Options{Version: "test"})
	m.width, m.height = 80, 24

	// Seed the listing the way Init would.
	rm := m.refreshCmd()().(refreshedMsg)
	m.nodes = rm.nodes

	// Cursor starts on "docs" (dirs sort first); enter it.
	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = model.(Model)
	if m.cwd != "docs" {
		t.Fatalf("cwd = %q, want %q", m.cwd, "docs")
	}
	if cmd == nil {
		t.Fatal("expected a refresh command after descending")
	}
	rm = cmd().(refreshedMsg)
	m.nodes = rm.nodes
	if len(m.nodes) != 2 {
		t.Fatalf("len(nodes) under docs/ = %d, want 2", len(m.nodes))
	}

	// Go back up.
	model, cmd = m.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	m = model.(Model)
	if m.cwd != "" {
		t.Fatalf("cwd after backspace = %q, want root", m.cwd)
	}
	if cmd == nil {
		t.Fatal("expected a refresh command after ascending")
	}
}

func TestLooksLikeText(t *testing.T) {
	if !looksLikeText([]byte("hello\nworld\n")) {
		t.Error("plain text misclassified as binary")
	}
	if looksLikeText([]byte{0x00, 0x01, 0x02, 0xff, 0xfe}) {
		t.Error("binary data misclassified as text")
	}
}

func TestParentOf(t *testing.T) {
	cases := map[string]string{
		"":              "",
		"docs":          "",
		"docs/nested":   "docs",
		"a/b/c":         "a/b",
	}
	for in, want := range cases {
		if got := parentOf(in); got != want {
			t.Errorf("parentOf(%q) = %q, want %q", in, got, want)
		}
	}
}
