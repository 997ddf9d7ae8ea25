// Package vault implements the log-structured metadata engine: the
// Index, Sync Engine, Write Buffer, Session/Scope, File Handle, and
// Snapshot codec components that sit on top of a mailstore.Store and the
// codec package's wire format.
package vault

import (
	"github.com/bre/mailfile/internal/codec"
	"github.com/bre/mailfile/internal/vaultcrypto"
)

// defaultBufferingMaxBytes and defaultSnapshotDistance are the engine's
// built-in thresholds when a Config leaves them unset.
const (
	defaultBufferingMaxBytes = 1 << 20 // 1 MiB
	defaultSnapshotDistance  = 20
	defaultVersions          = 1
)

// Config holds the Session's current mode: which folder it talks to, the
// wire format mode (clear or encrypted), and the buffering/snapshot
// thresholds. A copy of Config is pushed onto the Session's config stack
// on Enter and popped on Exit, so mutations made inside a scope (e.g.
// toggling Encrypted for one transaction) do not outlive it.
type Config struct {
	Folder  string
	Headers codec.Headers

	Encrypted bool
	Fernet    *vaultcrypto.Fernet

	Buffering         bool
	BufferingMaxBytes int
	SnapshotDistance  int
}

// DefaultConfig returns a Config with the engine's default thresholds,
// clear (unencrypted) mode, and buffering off — Enter turns buffering on
// for the duration of each scope regardless of this default.
func DefaultConfig(folder string) Config {
	return Config{
		Folder:            folder,
		Headers:           codec.DefaultHeaders(),
		Buffering:         false,
		BufferingMaxBytes: defaultBufferingMaxBytes,
		SnapshotDistance:  defaultSnapshotDistance,
	}
}

func (c Config) codecOptions() codec.Options {
	return codec.Options{Encrypted: c.Encrypted, Fernet: c.Fernet, Headers: c.Headers}
}

func (c Config) bufferingMaxBytes() int {
	if c.BufferingMaxBytes <= 0 {
		return defaultBufferingMaxBytes
	}
	return c.BufferingMaxBytes
}

func (c Config) snapshotDistance() int {
	if c.SnapshotDistance <= 0 {
		return defaultSnapshotDistance
	}
	return c.SnapshotDistance
}
