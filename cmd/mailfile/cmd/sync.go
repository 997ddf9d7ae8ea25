package cmd

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bre/mailfile/internal/vault"
)

var (
	syncForceSnapshot bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the index against the backing mailbox",
	Long: `Run the reverse-scan sync algorithm: fold any messages appended
since the last sync into the index, expire over-retained versions, and
(once enough new sequences have accumulated, or --snapshot forces it)
write a fresh index snapshot.

Cleanup of expired versions happens on every sync automatically; there is
no separate opt-in flag for it.`,
	RunE: func(c *cobra.Command, args []string) error {
		sess, err := openSession(c.Context())
		if err != nil {
			return err
		}
		sc, err := sess.Enter(c.Context())
		if err != nil {
			return eris.Wrap(err, "enter session")
		}
		defer sc.Exit()

		var sum vault.Summary
		if syncForceSnapshot {
			sum, err = sc.ForceSnapshot()
		} else {
			sum, err = sc.Synchronize()
		}
		if err != nil {
			return eris.Wrap(err, "sync")
		}
		printSyncSummary(sum)
		return nil
	},
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Synchronize and report on version cleanup",
	Long: `Alias for sync that surfaces cleanup statistics explicitly.
Every Synchronize call already enforces per-path version retention and
deletes anything no longer referenced; gc exists so that intent is
discoverable on its own.`,
	RunE: func(c *cobra.Command, args []string) error {
		sess, err := openSession(c.Context())
		if err != nil {
			return err
		}
		sc, err := sess.Enter(c.Context())
		if err != nil {
			return eris.Wrap(err, "enter session")
		}
		defer sc.Exit()

		sum, err := sc.Synchronize()
		if err != nil {
			return eris.Wrap(err, "gc")
		}
		fmt.Printf("versions expired: %d\n", sum.VersionsExpired)
		fmt.Printf("sequences deleted: %d\n", sum.PathsDeleted)
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Force an index snapshot write",
	RunE: func(c *cobra.Command, args []string) error {
		sess, err := openSession(c.Context())
		if err != nil {
			return err
		}
		sc, err := sess.Enter(c.Context())
		if err != nil {
			return eris.Wrap(err, "enter session")
		}
		defer sc.Exit()

		sum, err := sc.ForceSnapshot()
		if err != nil {
			return eris.Wrap(err, "snapshot")
		}
		printSyncSummary(sum)
		return nil
	},
}

func printSyncSummary(sum vault.Summary) {
	fmt.Printf("scanned: %d, updated: %d, deleted: %d, versions expired: %d\n",
		sum.Scanned, sum.PathsUpdated, sum.PathsDeleted, sum.VersionsExpired)
	if sum.SnapshotLoaded {
		fmt.Println("loaded a prior snapshot")
	}
	if sum.SnapshotWritten {
		fmt.Println("wrote a new snapshot")
	}
}

func init() {
	syncCmd.Flags().BoolVar(&syncForceSnapshot, "snapshot", false, "force a snapshot write regardless of snapshot_distance")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(snapshotCmd)
}
