package cmd

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var versionsCmd = &cobra.Command{
	Use:   "versions <path>",
	Short: "List path's retained sequence numbers",
	Args:  cobra.ExactArgs(1),
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

		seqs, err := sc.Versions(path)
		if err != nil {
			return eris.Wrapf(err, "versions %s", path)
		}
		for _, sq := range seqs {
			fmt.Println(sq)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionsCmd)
}
