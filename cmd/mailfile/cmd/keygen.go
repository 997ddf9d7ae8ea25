package cmd

import (
	"context"
	"crypto/rand"
	"fmt"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/term"

	"github.com/bre/mailfile/internal/config"
	"github.com/bre/mailfile/internal/fileutil"
	"github.com/bre/mailfile/internal/imap"
	"github.com/bre/mailfile/internal/oauth"
	"github.com/bre/mailfile/internal/vaultcrypto"
)

var keygenForce bool

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate and persist an encryption key",
	Long: `Generate a random 32-byte key and persist it under the mailfile
home directory. Commands run with --encrypt derive their Fernet-equivalent
encryption from this key.`,
	RunE: func(c *cobra.Command, args []string) error {
		path, err := config.KeyPath()
		if err != nil {
			return eris.Wrap(err, "resolve key path")
		}
		if !keygenForce {
			if _, err := readFileString(path); err == nil {
				return fmt.Errorf("a key already exists at %s (use --force to overwrite)", path)
			}
		}

		var raw [32]byte
		if _, err := rand.Read(raw[:]); err != nil {
			return eris.Wrap(err, "generate key")
		}
		key := vaultcrypto.Key(raw)

		if err := fileutil.SecureWriteFile(path, []byte(key.String()), 0o600); err != nil {
			return eris.Wrap(err, "write key")
		}
		fmt.Printf("Key written to %s\n", path)
		fmt.Println("Use --encrypt on any command to read/write through this key.")
		return nil
	},
}

var (
	loginHeadless bool
	loginForce    bool
)

var loginCmd = &cobra.Command{
	Use:   "login <account>",
	Short: "Authorize a configured IMAP account",
	Long: `Authorize the named account from config.toml against its IMAP
server: an OAuth2 browser/device flow when the account sets oauth_issuer,
otherwise an interactive password prompt whose app password is stored
under the mailfile home directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		name := args[0]
		acc, ok := cfg.Accounts[name]
		if !ok {
			return fmt.Errorf("no account %q in config.toml", name)
		}

		tokensDir, err := config.TokensDir()
		if err != nil {
			return eris.Wrap(err, "resolve tokens dir")
		}

		if acc.OAuthIssuer != "" {
			if loginHeadless && loginForce {
				return fmt.Errorf("--headless and --force cannot be used together")
			}
			mgr, err := oauth.NewManager(c.Context(), acc.OAuthIssuer, acc.OAuthClientID, acc.OAuthClientSecret, acc.OAuthScopes, tokensDir, logger)
			if err != nil {
				return eris.Wrap(err, "build oauth manager")
			}
			if loginForce && mgr.HasToken(acc.Username) {
				if err := mgr.DeleteToken(acc.Username); err != nil {
					return eris.Wrap(err, "delete existing token")
				}
			}
			if mgr.HasToken(acc.Username) && !loginForce {
				fmt.Printf("Account %q is already authorized.\n", name)
				return nil
			}
			if err := mgr.Authorize(c.Context(), acc.Username, loginHeadless); err != nil {
				return eris.Wrap(err, "authorize")
			}
			fmt.Printf("Account %q authorized.\n", name)
			return nil
		}

		imapCfg := &imap.Config{Host: acc.Host, Port: acc.Port, TLS: acc.TLS, STARTTLS: acc.STARTTLS, Username: acc.Username}
		fmt.Printf("Password for %s@%s: ", acc.Username, acc.Host)
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return eris.Wrap(err, "read password")
		}
		password := string(raw)
		if password == "" {
			return fmt.Errorf("password is required")
		}

		testClient := imap.NewClient(imapCfg, password, imap.WithLogger(logger))
		if _, err := testClient.Select(c.Context(), cfg.BaseFolder); err != nil {
			_ = testClient.Close()
			return eris.Wrap(err, "test connection")
		}
		_ = testClient.Close()

		if err := imap.SaveCredentials(tokensDir, imapCfg.Identifier(), password); err != nil {
			return eris.Wrap(err, "save credentials")
		}
		fmt.Printf("Account %q authorized.\n", name)
		return nil
	},
}

// accountTokenSource builds an oauth2.TokenSource for acc, reusing a
// previously persisted token rather than re-authorizing.
func accountTokenSource(ctx context.Context, acc config.Account, tokensDir string) (oauth2.TokenSource, error) {
	mgr, err := oauth.NewManager(ctx, acc.OAuthIssuer, acc.OAuthClientID, acc.OAuthClientSecret, acc.OAuthScopes, tokensDir, logger)
	if err != nil {
		return nil, err
	}
	return mgr.TokenSource(ctx, acc.Username)
}

func init() {
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "overwrite an existing key")
	rootCmd.AddCommand(keygenCmd)

	loginCmd.Flags().BoolVar(&loginHeadless, "headless", false, "print device-flow instructions instead of opening a browser")
	loginCmd.Flags().BoolVar(&loginForce, "force", false, "delete any existing token/password and re-authorize")
	rootCmd.AddCommand(loginCmd)
}
