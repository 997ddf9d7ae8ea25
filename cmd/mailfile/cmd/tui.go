package cmd

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bre/mailfile/internal/tui"
)

// Version is set at build time via -ldflags; empty builds still run fine.
var Version = "dev"

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive terminal file browser",
	Long: `Open a read-only terminal UI over the current mailbox: a
directory-listing pane derived from the Index's prefix scan, a preview
pane for small text files, and metadata display. It synchronizes once on
entry and offers a manual refresh keybinding; it never writes.`,
	RunE: func(c *cobra.Command, args []string) error {
		sess, err := openSession(c.Context())
		if err != nil {
			return err
		}
		if err := tui.Run(c.Context(), sess, tui.Options{Version: Version}); err != nil {
			return eris.Wrap(err, "run tui")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
