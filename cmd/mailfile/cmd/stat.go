package cmd

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Print path's current metadata",
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

		meta, err := sc.Stat(path)
		if err != nil {
			return eris.Wrapf(err, "stat %s", path)
		}

		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s: %v\n", k, meta[k])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statCmd)
}
