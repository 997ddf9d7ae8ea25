package cmd

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <path> <local>",
	Short: "Fetch path's latest version to a local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		path, local := args[0], args[1]

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

		if err := os.WriteFile(local, h.GetValue(), 0o600); err != nil {
			return eris.Wrapf(err, "write %s", local)
		}
		fmt.Printf("%s -> %s (%d bytes)\n", path, local, len(h.GetValue()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
