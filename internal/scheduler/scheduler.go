// Package scheduler runs Synchronize on a cron schedule, one job per
// configured account, the way the teacher schedules per-account Gmail
// sync jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bre/mailfile/internal/config"
)

// SyncFunc is invoked when a scheduled sync should run for account.
type SyncFunc func(ctx context.Context, account string) error

// AccountStatus reports one scheduled account's last/next run.
type AccountStatus struct {
	Account   string    `json:"account"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run"`
	Schedule  string    `json:"schedule"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler manages cron-based Synchronize scheduling across accounts.
type Scheduler struct {
	cron     *cron.Cron
	syncFunc SyncFunc
	logger   *slog.Logger

	mu        sync.RWMutex
	jobs      map[string]cron.EntryID
	schedules map[string]string
	running   map[string]bool
	lastRun   map[string]time.Time
	lastErr   map[string]error

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// New creates a Scheduler that calls syncFunc for each due account.
func New(syncFunc SyncFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow,
		)), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		syncFunc:  syncFunc,
		logger:    slog.Default(),
		jobs:      make(map[string]cron.EntryID),
		schedules: make(map[string]string),
		running:   make(map[string]bool),
		lastRun:   make(map[string]time.Time),
		lastErr:   make(map[string]error),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddAccount schedules account's sync using cronExpr.
func (s *Scheduler) AddAccount(account, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[account]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, account)
		delete(s.schedules, account)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.mu.Lock()
		if s.stopped || s.running[account] {
			s.mu.Unlock()
			return
		}
		s.running[account] = true
		s.wg.Add(1)
		s.mu.Unlock()
		s.runSync(account)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.jobs[account] = entryID
	s.schedules[account] = cronExpr
	s.logger.Info("scheduled sync",
		"account", account,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entryID).Next)

	return nil
}

// AddAccountsFromConfig adds every account cfg marks with a Schedule.
// Returns the number scheduled and any per-account errors encountered.
func (s *Scheduler) AddAccountsFromConfig(cfg config.Config) (int, []error) {
	var errs []error
	scheduled := 0

	for name, acc := range cfg.ScheduledAccounts() {
		if err := s.AddAccount(name, acc.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		} else {
			scheduled++
		}
	}

	return scheduled, errs
}

// RemoveAccount removes account's schedule.
func (s *Scheduler) RemoveAccount(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[account]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, account)
		delete(s.schedules, account)
		s.logger.Info("removed schedule", "account", account)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// IsRunning returns true if the scheduler has been started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop gracefully stops the scheduler, cancels running sync jobs, and waits
// for them to finish. Returns a context that is done when all work completes.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-done
		cancel()
	}()
	return ctx
}

// runSync executes sync for an account (called by cron or TriggerSync).
// The caller must have already called wg.Add(1) and set running[account] = true.
func (s *Scheduler) runSync(account string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[account] = false
		s.mu.Unlock()
	}()

	s.logger.Info("starting scheduled sync", "account", account)
	start := time.Now()

	err := s.syncFunc(s.ctx, account)

	s.mu.Lock()
	if err != nil {
		s.lastErr[account] = err
		s.logger.Error("scheduled sync failed",
			"account", account,
			"duration", time.Since(start),
			"error", err)
	} else {
		s.lastRun[account] = time.Now()
		s.lastErr[account] = nil
		s.logger.Info("scheduled sync completed",
			"account", account,
			"duration", time.Since(start))
	}
	s.mu.Unlock()
}

// IsScheduled returns true if account has been added to the scheduler.
func (s *Scheduler) IsScheduled(account string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.jobs[account]
	return exists
}

// TriggerSync manually triggers a sync for account (outside of schedule).
func (s *Scheduler) TriggerSync(account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if _, exists := s.jobs[account]; !exists {
		return fmt.Errorf("account %s is not scheduled", account)
	}
	if s.running[account] {
		return fmt.Errorf("sync already running for %s", account)
	}

	s.running[account] = true
	s.wg.Add(1)
	go s.runSync(account)
	return nil
}

// Status returns the current status of all scheduled accounts.
func (s *Scheduler) Status() []AccountStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var statuses []AccountStatus
	for account, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		status := AccountStatus{
			Account:  account,
			Running:  s.running[account],
			LastRun:  s.lastRun[account],
			NextRun:  entry.Next,
			Schedule: s.schedules[account],
		}
		if err := s.lastErr[account]; err != nil {
			status.LastError = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
