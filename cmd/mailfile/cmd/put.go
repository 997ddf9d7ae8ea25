package cmd

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var putVersions int

var putCmd = &cobra.Command{
	Use:   "put <local> <path>",
	Short: "Store a local file as path",
	Args:  cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		local, path := args[0], args[1]

		data, err := os.ReadFile(local)
		if err != nil {
			return eris.Wrapf(err, "read %s", local)
		}

		sess, err := openSession(c.Context())
		if err != nil {
			return err
		}
		sc, err := sess.Enter(c.Context())
		if err != nil {
			return eris.Wrap(err, "enter session")
		}
		defer sc.Exit()

		h, err := sc.Open(path, "w")
		if err != nil {
			return eris.Wrapf(err, "open %s", path)
		}
		if _, err := h.Write(data); err != nil {
			_ = h.Close()
			return eris.Wrapf(err, "write %s", path)
		}
		if putVersions > 0 {
			meta := h.Metadata()
			meta["versions"] = putVersions
			h.SetMetadata(meta)
		}
		if err := h.Close(); err != nil {
			return eris.Wrapf(err, "close %s", path)
		}

		fmt.Printf("%s -> %s (%d bytes)\n", local, path, len(data))
		return nil
	},
}

func init() {
	putCmd.Flags().IntVar(&putVersions, "versions", 0, "number of historical versions to retain for this path")
	rootCmd.AddCommand(putCmd)
}
