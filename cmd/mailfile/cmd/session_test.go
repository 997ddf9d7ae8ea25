package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bre/mailfile/internal/config"
	"github.com/bre/mailfile/internal/maildir"
)

func TestResolveStore_EmptyAccountUsesLocalMaildir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("MAILFILE_HOME", home)

	store, err := resolveStore(context.Background(), "")
	if err != nil {
		t.Fatalf("resolveStore(\"\") error = %v", err)
	}
	if _, ok := store.(*maildir.Store); !ok {
		t.Fatalf("resolveStore(\"\") = %T, want *maildir.Store", store)
	}
}

func TestResolveStore_UnknownAccount(t *testing.T) {
	home := t.TempDir()
	t.Setenv("MAILFILE_HOME", home)

	saved := cfg
	cfg = config.Default()
	defer func() { cfg = saved }()

	if _, err := resolveStore(context.Background(), "does-not-exist"); err == nil {
		t.Fatal("resolveStore with an unconfigured account should fail")
	}
}

func TestLoadKey_RoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("MAILFILE_HOME", home)

	resetGlobalFlags(t)
	runCmd(t, "keygen")

	key, err := loadKey()
	if err != nil {
		t.Fatalf("loadKey() error = %v", err)
	}
	if key.String() == "" {
		t.Fatal("loaded key should not stringify to an empty value")
	}

	path, err := config.KeyPath()
	if err != nil {
		t.Fatalf("config.KeyPath() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("key file should exist at %s: %v", path, err)
	}
}

func TestReadFileString_TrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value.txt")
	if err := os.WriteFile(path, []byte("  hello\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	got, err := readFileString(path)
	if err != nil {
		t.Fatalf("readFileString error = %v", err)
	}
	if got != "hello" {
		t.Fatalf("readFileString = %q, want %q", got, "hello")
	}
}
