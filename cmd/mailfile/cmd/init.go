package cmd

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bre/mailfile/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the mailfile home directory and default config",
	Long: `Create the mailfile home directory (~/.mailfile by default, or
$MAILFILE_HOME) and write config.toml if it doesn't already exist. Safe
to run more than once.`,
	RunE: func(c *cobra.Command, args []string) error {
		path, err := config.Path()
		if err != nil {
			return eris.Wrap(err, "resolve config path")
		}

		if _, err := readFileString(path); err == nil {
			fmt.Printf("Config already exists at %s\n", path)
			return nil
		}

		if err := config.Save(config.Default()); err != nil {
			return eris.Wrap(err, "write default config")
		}
		fmt.Printf("Initialized mailfile home and wrote %s\n", path)
		fmt.Println("Edit it to add IMAP accounts, then run `mailfile sync`.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
