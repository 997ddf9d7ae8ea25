package cmd

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Tombstone path",
	Long: `Tombstone path: its content is replaced with an empty payload
carrying deleted=true. Prior versions remain subject to normal retention
rather than being unlinked immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		path := args[0]

		sess, err := openSession(c.Context())
		if err != nil {
			return err
		}
		sc, err := sess.Enter(c.Context())
		if err != nil {
			return eris.Wrap(err, "enter session")
		}
		defer sc.Exit()

		if err := sc.Remove(path); err != nil {
			return eris.Wrapf(err, "remove %s", path)
		}
		fmt.Printf("removed %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
