package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/bre/mailfile/internal/codec"
	"github.com/bre/mailfile/internal/config"
	"github.com/bre/mailfile/internal/imap"
	"github.com/bre/mailfile/internal/maildir"
	"github.com/bre/mailfile/internal/mailstore"
	"github.com/bre/mailfile/internal/vault"
	"github.com/bre/mailfile/internal/vaultcrypto"
)

// openSession builds the Session the current command should operate
// against: a local Maildir by default, or the named --account's IMAP
// server when one was given. The folder, buffering, and snapshot
// thresholds come from config.toml unless overridden on the command
// line; --encrypt layers Fernet-equivalent encryption on top using the
// key persisted by `mailfile keygen`.
func openSession(ctx context.Context) (*vault.Session, error) {
	return openSessionFor(ctx, accountName)
}

// openSessionFor is openSession with an explicit account name rather
// than the --account flag's global, so concurrent callers (the
// scheduler runs one goroutine per account) never share mutable state.
func openSessionFor(ctx context.Context, account string) (*vault.Session, error) {
	store, err := resolveStore(ctx, account)
	if err != nil {
		return nil, err
	}

	folder := cfg.BaseFolder
	if folderFlag != "" {
		folder = folderFlag
	}

	vcfg := vault.DefaultConfig(folder)
	vcfg.Headers = codec.Headers{To: cfg.Headers.To, From: cfg.Headers.From, Subject: cfg.Headers.Subject}
	if cfg.BufferingMaxBytes > 0 {
		vcfg.BufferingMaxBytes = cfg.BufferingMaxBytes
	}
	if cfg.SnapshotDistance > 0 {
		vcfg.SnapshotDistance = cfg.SnapshotDistance
	}

	if encryptFlag {
		key, err := loadKey()
		if err != nil {
			return nil, eris.Wrap(err, "load encryption key (run `mailfile keygen` first)")
		}
		vcfg.Encrypted = true
		vcfg.Fernet = vaultcrypto.New(key)
	}

	return vault.NewSession(store, vcfg, logger), nil
}

// resolveStore picks the backing mailstore.Store: account's IMAP
// server, or a Maildir rooted under the mailfile home directory when
// account is empty.
func resolveStore(ctx context.Context, account string) (mailstore.Store, error) {
	if account == "" {
		home, err := config.HomeDir()
		if err != nil {
			return nil, err
		}
		return maildir.New(filepath.Join(home, "maildir")), nil
	}

	acc, ok := cfg.Accounts[account]
	if !ok {
		return nil, fmt.Errorf("no account %q in config.toml", account)
	}

	imapCfg := &imap.Config{
		Host:     acc.Host,
		Port:     acc.Port,
		TLS:      acc.TLS,
		STARTTLS: acc.STARTTLS,
		Username: acc.Username,
	}

	tokensDir, err := config.TokensDir()
	if err != nil {
		return nil, err
	}

	if acc.OAuthIssuer != "" {
		tokenSource, err := accountTokenSource(ctx, acc, tokensDir)
		if err != nil {
			return nil, eris.Wrap(err, "get oauth token (run `mailfile login` first)")
		}
		return imap.NewOAuthClient(imapCfg, tokenSource, imap.WithLogger(logger)), nil
	}

	password, err := imap.LoadCredentials(tokensDir, imapCfg.Identifier())
	if err != nil {
		return nil, eris.Wrap(err, "load saved password (run `mailfile login` first)")
	}
	return imap.NewClient(imapCfg, password, imap.WithLogger(logger)), nil
}

// loadKey reads the encryption key persisted by `mailfile keygen`.
func loadKey() (vaultcrypto.Key, error) {
	path, err := config.KeyPath()
	if err != nil {
		return vaultcrypto.Key{}, err
	}
	data, err := readFileString(path)
	if err != nil {
		return vaultcrypto.Key{}, err
	}
	return vaultcrypto.ParseKey(data)
}

func readFileString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
