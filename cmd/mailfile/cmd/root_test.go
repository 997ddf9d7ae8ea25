package cmd

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

// TestExecuteContext_CancellationPropagates verifies that context
// cancellation from ExecuteContext propagates to command handlers.
func TestExecuteContext_CancellationPropagates(t *testing.T) {
	var contextWasCancelled atomic.Bool

	testCmd := &cobra.Command{
		Use:   "test-cancel",
		Short: "Test command for context cancellation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			select {
			case <-ctx.Done():
				contextWasCancelled.Store(true)
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		},
	}

	rootCmd.AddCommand(testCmd)
	defer rootCmd.RemoveCommand(testCmd)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		rootCmd.SetArgs([]string{"test-cancel"})
		done <- ExecuteContext(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled error, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ExecuteContext did not return after context cancellation")
	}

	if !contextWasCancelled.Load() {
		t.Error("command did not observe context cancellation")
	}
}

// TestRoot_InitSkipsConfigLoad verifies the `init` subcommand runs
// before any config.toml exists, since PersistentPreRunE special-cases
// the init command name to avoid requiring one.
func TestRoot_InitSkipsConfigLoad(t *testing.T) {
	resetGlobalFlags(t)
	home := t.TempDir()
	t.Setenv("MAILFILE_HOME", home)

	rootCmd.SetArgs([]string{"init"})
	if err := Execute(); err != nil {
		t.Fatalf("init on a fresh home failed: %v", err)
	}
}

// resetGlobalFlags restores the package-level flag variables rootCmd's
// persistent flags bind to, since rootCmd is a package singleton reused
// across every test in this package.
func resetGlobalFlags(t *testing.T) {
	t.Helper()
	homeOverride = ""
	accountName = ""
	folderFlag = ""
	encryptFlag = false
	verbose = false
}
