package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bre/mailfile/internal/config"
)

var (
	homeOverride string
	accountName  string
	folderFlag   string
	encryptFlag  bool
	verbose      bool

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mailfile",
	Short: "A versioned file store built on an append-only mailbox",
	Long: `mailfile stores arbitrary files as versioned, content-addressed
objects inside an RFC2822 mailbox — a Maildir directory by default, or a
real IMAP account when --account names one configured in config.toml.

Every command that reads or writes stored files synchronizes against the
backing mailbox first, so the index always reflects what has actually been appended, including by
other concurrent writers.`,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		if homeOverride != "" {
			if err := os.Setenv("MAILFILE_HOME", homeOverride); err != nil {
				return eris.Wrap(err, "set MAILFILE_HOME")
			}
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		if c.Name() == "init" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		return nil
	},
}

// Execute runs the root command with a background context.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, so Ctrl-C cancels any
// in-flight mailbox operation instead of leaving it to finish.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeOverride, "home", "", "mailfile home directory (overrides MAILFILE_HOME)")
	rootCmd.PersistentFlags().StringVar(&accountName, "account", "", "named IMAP account from config.toml (default: local maildir)")
	rootCmd.PersistentFlags().StringVar(&folderFlag, "folder", "", "mailbox folder to use (default: config's base_folder)")
	rootCmd.PersistentFlags().BoolVar(&encryptFlag, "encrypt", false, "encrypt stored content with the key from `mailfile keygen`")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}
