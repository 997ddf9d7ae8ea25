// Package config loads mailfile's on-disk TOML configuration, layered
// with environment-variable overrides, the way the teacher layers
// MSGVAULT_HOME on top of its own config.toml.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/bre/mailfile/internal/fileutil"
)

// homeEnvVar overrides the default config/data directory, mirroring the
// teacher's MSGVAULT_HOME.
const homeEnvVar = "MAILFILE_HOME"

const configFileName = "config.toml"

// Account is one named remote IMAP account a Session can be pointed at.
type Account struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	TLS      bool   `toml:"tls"`
	STARTTLS bool   `toml:"starttls"`
	Username string `toml:"username"`

	// Schedule is a cron expression for periodic auto-sync of this
	// account; empty means the scheduler leaves it alone.
	Schedule string `toml:"schedule"`

	// OAuthIssuer, when set, makes `login` drive an OIDC-discovery
	// browser/device flow (internal/oauth) instead of prompting for a
	// password. Empty means password auth via a stored app password.
	OAuthIssuer       string   `toml:"oauth_issuer"`
	OAuthClientID     string   `toml:"oauth_client_id"`
	OAuthClientSecret string   `toml:"oauth_client_secret"`
	OAuthScopes       []string `toml:"oauth_scopes"`
}

// ScheduledAccounts returns every named account with a non-empty
// Schedule, for the scheduler to register at startup.
func (c Config) ScheduledAccounts() map[string]Account {
	out := make(map[string]Account)
	for name, acc := range c.Accounts {
		if acc.Schedule != "" {
			out[name] = acc
		}
	}
	return out
}

// Headers are the ornamental To/From/Subject fields written into every
// stored object's RFC2822 envelope.
type Headers struct {
	To      string `toml:"to"`
	From    string `toml:"from"`
	Subject string `toml:"subject"`
}

// Config is mailfile's full on-disk configuration.
type Config struct {
	// BaseFolder is the mailbox folder Synchronize/Open/etc operate
	// against when a Session doesn't override it.
	BaseFolder string `toml:"base_folder" env:"MAILFILE_BASE_FOLDER"`

	Headers Headers `toml:"headers"`

	BufferingMaxBytes int `toml:"buffering_max_bytes" env:"MAILFILE_BUFFERING_MAX_BYTES"`
	SnapshotDistance  int `toml:"snapshot_distance" env:"MAILFILE_SNAPSHOT_DISTANCE"`

	Accounts map[string]Account `toml:"accounts"`
}

// Default returns the built-in configuration used when no config file
// is present yet.
func Default() Config {
	return Config{
		BaseFolder: "mailfile",
		Headers: Headers{
			To:      "Mailfile Storage <to@mailfile.invalid>",
			From:    "Mailfile Storage <from@mailfile.invalid>",
			Subject: "[Mailfile] File Storage",
		},
		BufferingMaxBytes: 1 << 20,
		SnapshotDistance:  20,
		Accounts:          map[string]Account{},
	}
}

// HomeDir returns the directory mailfile keeps its config and local
// state in: $MAILFILE_HOME if set, else ~/.mailfile.
func HomeDir() (string, error) {
	if v := os.Getenv(homeEnvVar); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".mailfile"), nil
}

// TokensDir returns the directory OAuth tokens and saved IMAP app
// passwords are kept in, creating it with owner-only permissions if
// necessary.
func TokensDir() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, "tokens")
	if err := fileutil.SecureMkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("config: create tokens dir: %w", err)
	}
	return dir, nil
}

// KeyPath returns the path of the persisted encryption key written by
// `mailfile keygen`.
func KeyPath() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "key"), nil
}

// Path returns the config file's full path.
func Path() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads the config file if present, applies built-in defaults for
// anything it leaves unset, then layers environment variable overrides
// on top via caarlos0/env. A missing config file is not an error: Load
// returns Default() with env overrides applied.
func Load() (Config, error) {
	cfg := Default()

	path, err := Path()
	if err != nil {
		return Config{}, err
	}

	if data, err := os.ReadFile(path); err == nil {
		var onDisk Config
		if _, err := toml.Decode(string(data), &onDisk); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg = mergeOnto(cfg, onDisk)
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: apply env overrides: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to the config file, creating the home directory (with
// owner-only permissions, via fileutil) if necessary.
func Save(cfg Config) error {
	dir, err := HomeDir()
	if err != nil {
		return err
	}
	if err := fileutil.SecureMkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("config: create home dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	path := filepath.Join(dir, configFileName)
	if err := fileutil.SecureWriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// mergeOnto overlays any non-zero field of onDisk onto base, field by
// field, so a config.toml that only sets base_folder doesn't blow away
// the built-in default headers or thresholds.
func mergeOnto(base, onDisk Config) Config {
	out := base
	if onDisk.BaseFolder != "" {
		out.BaseFolder = onDisk.BaseFolder
	}
	if onDisk.Headers.To != "" {
		out.Headers.To = onDisk.Headers.To
	}
	if onDisk.Headers.From != "" {
		out.Headers.From = onDisk.Headers.From
	}
	if onDisk.Headers.Subject != "" {
		out.Headers.Subject = onDisk.Headers.Subject
	}
	if onDisk.BufferingMaxBytes > 0 {
		out.BufferingMaxBytes = onDisk.BufferingMaxBytes
	}
	if onDisk.SnapshotDistance > 0 {
		out.SnapshotDistance = onDisk.SnapshotDistance
	}
	if len(onDisk.Accounts) > 0 {
		out.Accounts = onDisk.Accounts
	}
	return out
}
