package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bre/mailfile/internal/vault"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive REPL for put/get/ls/rm without paying a full sync per command",
	Long: `Open one Session and keep it alive across a sequence of
commands typed at a prompt. Each command still synchronizes, but only
the first one scans the whole mailbox; later ones only fold in what was
appended since, where every separate CLI invocation starts a cold scan.

Commands: put <local> <path>, get <path> <local>, cat <path>, ls [prefix],
cd <prefix>, stat <path>, rm <path>, versions <path>, sync, exit.`,
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

		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "mailfile> ",
			HistoryFile:     filepath.Join(os.TempDir(), ".mailfile_history"),
			HistoryLimit:    500,
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return eris.Wrap(err, "init readline")
		}
		defer rl.Close()

		cwd := ""
		for {
			rl.SetPrompt(fmt.Sprintf("mailfile:/%s> ", cwd))
			line, err := rl.Readline()
			if err != nil {
				if err == readline.ErrInterrupt || err == io.EOF {
					return nil
				}
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}

			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			cmdName, rest := fields[0], fields[1:]

			switch cmdName {
			case "exit", "quit":
				return nil
			case "cd":
				cwd = shellCd(cwd, rest)
			default:
				if err := runShellCommand(sc, cmdName, rest, &cwd); err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
				}
			}
		}
	},
}

func shellCd(cwd string, args []string) string {
	if len(args) == 0 {
		return ""
	}
	target := args[0]
	if target == ".." {
		idx := strings.LastIndex(strings.TrimSuffix(cwd, "/"), "/")
		if idx < 0 {
			return ""
		}
		return cwd[:idx]
	}
	if cwd == "" {
		return target
	}
	return cwd + "/" + target
}

func runShellCommand(sc *vault.Scope, name string, args []string, cwd *string) error {
	switch name {
	case "ls":
		prefix := *cwd
		if len(args) == 1 {
			prefix = args[0]
		}
		paths, err := sc.List(prefix)
		if err != nil {
			return err
		}
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil

	case "put":
		if len(args) != 2 {
			return fmt.Errorf("usage: put <local> <path>")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		h, err := sc.Open(args[1], "w")
		if err != nil {
			return err
		}
		if _, err := h.Write(data); err != nil {
			_ = h.Close()
			return err
		}
		return h.Close()

	case "get":
		if len(args) != 2 {
			return fmt.Errorf("usage: get <path> <local>")
		}
		h, err := sc.Open(args[0], "r")
		if err != nil {
			return err
		}
		defer h.Close()
		return os.WriteFile(args[1], h.GetValue(), 0o600)

	case "cat":
		if len(args) != 1 {
			return fmt.Errorf("usage: cat <path>")
		}
		h, err := sc.Open(args[0], "r")
		if err != nil {
			return err
		}
		defer h.Close()
		_, err = os.Stdout.Write(h.GetValue())
		fmt.Println()
		return err

	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("usage: rm <path>")
		}
		return sc.Remove(args[0])

	case "stat":
		if len(args) != 1 {
			return fmt.Errorf("usage: stat <path>")
		}
		meta, err := sc.Stat(args[0])
		if err != nil {
			return err
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

	case "versions":
		if len(args) != 1 {
			return fmt.Errorf("usage: versions <path>")
		}
		seqs, err := sc.Versions(args[0])
		if err != nil {
			return err
		}
		for _, sq := range seqs {
			fmt.Println(strconv.Itoa(int(sq)))
		}
		return nil

	case "sync":
		sum, err := sc.Synchronize()
		if err != nil {
			return err
		}
		printSyncSummary(sum)
		return nil

	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
