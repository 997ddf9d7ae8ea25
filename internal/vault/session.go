package vault

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bre/mailfile/internal/mailstore"
)

// Session owns the single exclusive lock guarding one backing store, the
// accumulated Index/seen state (the engine), and the Write Buffer. It is
// the long-lived object an application constructs once; every unit of
// work happens inside a Scope obtained from Enter.
//
// The lock is acquired exactly once, in Enter, and released exactly
// once, in the matching Scope.Exit. Every other method on Scope and
// Handle runs only while a Scope is open and therefore never needs to
// acquire the lock itself — this is what lets a logically-reentrant API
// (nested opens, a sync triggered by a flush, a close triggered by scope
// exit) sit on top of a plain, non-reentrant sync.Mutex without a
// goroutine-id tracking scheme.
type Session struct {
	store  mailstore.Store
	logger *slog.Logger

	mu   sync.Mutex
	eng  *engine
	wb   *writeBuffer
	base Config
}

// NewSession constructs a Session bound to store, using base as the
// default configuration every Scope starts from.
func NewSession(store mailstore.Store, base Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		store:  store,
		logger: logger,
		eng:    newEngine(),
		wb:     newWriteBuffer(),
		base:   base,
	}
}

// Enter acquires the session's exclusive lock and returns a Scope for
// exclusive use until Scope.Exit is called. The returned Scope's config
// stack starts with one copy of the session's base config, which
// Scope.Enter may push transactional overrides on top of (each frame
// replaced with Scope.SetConfig).
func (s *Session) Enter(ctx context.Context) (*Scope, error) {
	s.mu.Lock()

	if err := s.store.Create(ctx, s.base.Folder); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("vault: ensure folder %q: %w", s.base.Folder, err)
	}

	cfg := s.base
	cfg.Buffering = true
	return &Scope{
		session: s,
		ctx:     ctx,
		stack:   []Config{cfg},
	}, nil
}
