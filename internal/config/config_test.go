package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.BaseFolder != "mailfile" {
		t.Errorf("BaseFolder = %q, want %q", cfg.BaseFolder, "mailfile")
	}
	if cfg.BufferingMaxBytes != 1<<20 {
		t.Errorf("BufferingMaxBytes = %d, want %d", cfg.BufferingMaxBytes, 1<<20)
	}
	if cfg.SnapshotDistance != 20 {
		t.Errorf("SnapshotDistance = %d, want 20", cfg.SnapshotDistance)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(homeEnvVar, tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseFolder != "mailfile" {
		t.Errorf("BaseFolder = %q, want default", cfg.BaseFolder)
	}
}

func TestLoadMergesOnDiskOverDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(homeEnvVar, tmpDir)

	content := `
base_folder = "archive"
snapshot_distance = 50

[headers]
subject = "[Archive] storage"

[accounts.work]
host = "imap.example.com"
port = 993
tls = true
username = "me@example.com"
schedule = "0 * * * *"
`
	if err := os.WriteFile(filepath.Join(tmpDir, configFileName), []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseFolder != "archive" {
		t.Errorf("BaseFolder = %q, want %q", cfg.BaseFolder, "archive")
	}
	if cfg.SnapshotDistance != 50 {
		t.Errorf("SnapshotDistance = %d, want 50", cfg.SnapshotDistance)
	}
	// Untouched default must survive the merge.
	if cfg.BufferingMaxBytes != 1<<20 {
		t.Errorf("BufferingMaxBytes = %d, want default", cfg.BufferingMaxBytes)
	}
	if cfg.Headers.Subject != "[Archive] storage" {
		t.Errorf("Headers.Subject = %q, want override", cfg.Headers.Subject)
	}

	acc, ok := cfg.Accounts["work"]
	if !ok {
		t.Fatal("expected accounts.work to be present")
	}
	if acc.Host != "imap.example.com" || acc.Port != 993 || !acc.TLS {
		t.Errorf("account = %+v", acc)
	}

	scheduled := cfg.ScheduledAccounts()
	if _, ok := scheduled["work"]; !ok {
		t.Fatal("expected work account to appear in ScheduledAccounts")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(homeEnvVar, tmpDir)
	t.Setenv("MAILFILE_BASE_FOLDER", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseFolder != "from-env" {
		t.Errorf("BaseFolder = %q, want env override", cfg.BaseFolder)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(homeEnvVar, tmpDir)

	cfg := Default()
	cfg.BaseFolder = "roundtrip"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.BaseFolder != "roundtrip" {
		t.Errorf("BaseFolder = %q, want %q", got.BaseFolder, "roundtrip")
	}
}

func TestHomeDirDefault(t *testing.T) {
	t.Setenv(homeEnvVar, "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir: %v", err)
	}
	got, err := HomeDir()
	if err != nil {
		t.Fatalf("HomeDir: %v", err)
	}
	want := filepath.Join(home, ".mailfile")
	if got != want {
		t.Errorf("HomeDir() = %q, want %q", got, want)
	}
}
