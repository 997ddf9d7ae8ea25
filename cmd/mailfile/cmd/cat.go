package cmd

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print path's latest version to stdout",
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

		h, err := sc.Open(path, "r")
		if err != nil {
			return eris.Wrapf(err, "open %s", path)
		}
		defer h.Close()

		_, err = os.Stdout.Write(h.GetValue())
		return err
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}
