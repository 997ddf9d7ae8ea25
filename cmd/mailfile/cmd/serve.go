package cmd

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bre/mailfile/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cron-based auto-sync scheduler in the foreground",
	Long: `Start a Scheduler job for every account in config.toml that
sets a schedule cron expression, synchronizing that account's mailbox on
its own cadence until interrupted (Ctrl-C or SIGTERM).`,
	RunE: func(c *cobra.Command, args []string) error {
		sched := scheduler.New(syncAccount).WithLogger(logger)

		n, errs := sched.AddAccountsFromConfig(cfg)
		for _, err := range errs {
			logger.Warn("skipping account schedule", "err", err)
		}
		if n == 0 {
			return fmt.Errorf("no accounts in config.toml have a schedule set")
		}

		sched.Start()
		logger.Info("scheduler running", "accounts", n)

		<-c.Context().Done()
		logger.Info("shutting down, waiting for in-flight syncs")
		<-sched.Stop().Done()
		return nil
	},
}

// syncAccount runs one Synchronize pass against the named account,
// matching scheduler.SyncFunc's signature.
func syncAccount(ctx context.Context, account string) error {
	sess, err := openSessionFor(ctx, account)
	if err != nil {
		return eris.Wrapf(err, "open session for %s", account)
	}
	sc, err := sess.Enter(ctx)
	if err != nil {
		return eris.Wrap(err, "enter session")
	}
	defer sc.Exit()

	_, err = sc.Synchronize()
	return err
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
