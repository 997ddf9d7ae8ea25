// Package imap implements a mailstore.Store backed by a real IMAP
// server, for use as the storage backend behind a Session when the
// chosen mailbox lives on a remote provider instead of on local disk.
package imap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"

	"github.com/bre/mailfile/internal/mailstore"
)

// Option is a functional option for Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client is a mailstore.Store backed by a single IMAP account. Exactly
// one mailbox is selected at a time, matching mailstore.Store's
// single-selected-folder contract.
type Client struct {
	config   *Config
	password string          // used when tokenSource is nil
	tokenSrc oauth2.TokenSource // used for XOAUTH2 when non-nil, takes priority
	logger   *slog.Logger

	mu       sync.Mutex
	conn     *imapclient.Client
	selected string
}

// NewClient creates a Client that authenticates with a plain password.
func NewClient(cfg *Config, password string, opts ...Option) *Client {
	c := &Client{config: cfg, password: password, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewOAuthClient creates a Client that authenticates via XOAUTH2, drawing
// a fresh bearer token from src on every (re)connect.
func NewOAuthClient(cfg *Config, src oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{config: cfg, tokenSrc: src, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// connect establishes and authenticates the IMAP connection. Caller must hold mu.
func (c *Client) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	addr := c.config.Addr()
	c.logger.Debug("connecting to IMAP server", "addr", addr, "tls", c.config.TLS, "starttls", c.config.STARTTLS)

	imapOpts := &imapclient.Options{}
	var (
		conn *imapclient.Client
		err  error
	)
	if c.config.TLS {
		conn, err = imapclient.DialTLS(addr, imapOpts)
	} else if c.config.STARTTLS {
		conn, err = imapclient.DialStartTLS(addr, imapOpts)
	} else {
		conn, err = imapclient.DialInsecure(addr, imapOpts)
	}
	if err != nil {
		return fmt.Errorf("dial IMAP %s: %w", addr, err)
	}

	if c.tokenSrc != nil {
		tok, err := c.tokenSrc.Token()
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("refresh OAuth2 token: %w", err)
		}
		saslClient := sasl.NewXoauth2Client(c.config.Username, tok.AccessToken)
		if err := conn.Authenticate(saslClient).Wait(); err != nil {
			_ = conn.Close()
			return fmt.Errorf("IMAP XOAUTH2: %w", err)
		}
	} else {
		if err := conn.Login(c.config.Username, c.password).Wait(); err != nil {
			_ = conn.Close()
			return fmt.Errorf("IMAP login: %w", err)
		}
	}

	c.conn = conn
	c.selected = ""
	c.logger.Debug("connected and authenticated", "user", c.config.Username)
	return nil
}

func (c *Client) withConn(ctx context.Context, fn func(*imapclient.Client) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(ctx); err != nil {
		return err
	}
	return fn(c.conn)
}

// Select chooses folder and returns its message count.
func (c *Client) Select(ctx context.Context, folder string) (int, error) {
	var count int
	err := c.withConn(ctx, func(conn *imapclient.Client) error {
		data, err := conn.Select(folder, nil).Wait()
		if err != nil {
			return fmt.Errorf("SELECT %q: %w: %w", folder, mailstore.ErrNotFound, err)
		}
		c.selected = folder
		count = int(data.NumMessages)
		return nil
	})
	return count, err
}

// Create makes folder if it doesn't already exist; IMAP servers that
// reject a duplicate CREATE with an "already exists" response are
// treated as success.
func (c *Client) Create(ctx context.Context, folder string) error {
	return c.withConn(ctx, func(conn *imapclient.Client) error {
		if err := conn.Create(folder, nil).Wait(); err != nil {
			if _, selErr := conn.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait(); selErr == nil {
				return nil
			}
			return fmt.Errorf("CREATE %q: %w", folder, err)
		}
		return nil
	})
}

// SearchAll returns every UID in the currently selected mailbox.
func (c *Client) SearchAll(ctx context.Context) ([]mailstore.Seq, error) {
	var seqs []mailstore.Seq
	err := c.withConn(ctx, func(conn *imapclient.Client) error {
		if c.selected == "" {
			return fmt.Errorf("imap: SearchAll: no mailbox selected")
		}
		data, err := conn.UIDSearch(&imap.SearchCriteria{}, &imap.SearchOptions{ReturnAll: true}).Wait()
		if err != nil {
			return fmt.Errorf("UID SEARCH: %w", err)
		}
		uidSet, ok := data.All.(imap.UIDSet)
		if !ok {
			return nil
		}
		uids, _ := uidSet.Nums()
		seqs = make([]mailstore.Seq, len(uids))
		for i, u := range uids {
			seqs[i] = mailstore.Seq(u)
		}
		return nil
	})
	return seqs, err
}

// Fetch returns the raw message bytes for a UID, optionally truncated to
// rng's leading byte count via a partial BODY[] fetch.
func (c *Client) Fetch(ctx context.Context, seq mailstore.Seq, rng *mailstore.Range) ([]byte, error) {
	var raw []byte
	err := c.withConn(ctx, func(conn *imapclient.Client) error {
		if c.selected == "" {
			return fmt.Errorf("imap: Fetch: no mailbox selected")
		}
		var uidSet imap.UIDSet
		uidSet.AddNum(imap.UID(seq))

		section := &imap.FetchItemBodySection{Peek: true}
		if rng != nil && rng.Length > 0 {
			section.Partial = &imap.SectionPartial{Offset: 0, Size: int64(rng.Length)}
		}
		opts := &imap.FetchOptions{UID: true, BodySection: []*imap.FetchItemBodySection{section}}

		msgs, err := conn.Fetch(uidSet, opts).Collect()
		if err != nil {
			return fmt.Errorf("UID FETCH %d: %w", seq, err)
		}
		if len(msgs) == 0 || len(msgs[0].BodySection) == 0 {
			return fmt.Errorf("imap: Fetch: uid %d: %w", seq, mailstore.ErrNotFound)
		}
		raw = msgs[0].BodySection[0].Bytes
		return nil
	})
	return raw, err
}

// Append writes message to folder via IMAP APPEND and returns the UID
// the server assigns it, read back from the UIDPLUS response data.
func (c *Client) Append(ctx context.Context, folder string, message []byte) (mailstore.Seq, error) {
	var seq mailstore.Seq
	err := c.withConn(ctx, func(conn *imapclient.Client) error {
		appendCmd := conn.Append(folder, int64(len(message)), nil)
		if _, err := appendCmd.Write(message); err != nil {
			_ = appendCmd.Close()
			return fmt.Errorf("APPEND %q: write: %w", folder, err)
		}
		if err := appendCmd.Close(); err != nil {
			return fmt.Errorf("APPEND %q: close: %w", folder, err)
		}
		data, err := appendCmd.Wait()
		if err != nil {
			return fmt.Errorf("APPEND %q: %w", folder, err)
		}
		if data != nil && data.UID != 0 {
			seq = mailstore.Seq(data.UID)
			return nil
		}
		// Server didn't return UIDPLUS data; fall back to the highest
		// UID now present in the mailbox.
		if _, selErr := conn.Select(folder, nil).Wait(); selErr != nil {
			return fmt.Errorf("APPEND %q: reselect after append: %w", folder, selErr)
		}
		c.selected = folder
		searchData, searchErr := conn.UIDSearch(&imap.SearchCriteria{}, &imap.SearchOptions{ReturnAll: true}).Wait()
		if searchErr != nil {
			return fmt.Errorf("APPEND %q: resolve assigned UID: %w", folder, searchErr)
		}
		uidSet, ok := searchData.All.(imap.UIDSet)
		if !ok {
			return fmt.Errorf("APPEND %q: no UID returned and search found none", folder)
		}
		uids, _ := uidSet.Nums()
		var max imap.UID
		for _, u := range uids {
			if u > max {
				max = u
			}
		}
		seq = mailstore.Seq(max)
		return nil
	})
	return seq, err
}

// StoreDelete marks seqs \Deleted. Visibility in SearchAll is not
// guaranteed until Expunge.
func (c *Client) StoreDelete(ctx context.Context, seqs []mailstore.Seq) error {
	if len(seqs) == 0 {
		return nil
	}
	return c.withConn(ctx, func(conn *imapclient.Client) error {
		if c.selected == "" {
			return fmt.Errorf("imap: StoreDelete: no mailbox selected")
		}
		var uidSet imap.UIDSet
		for _, sq := range seqs {
			uidSet.AddNum(imap.UID(sq))
		}
		if err := conn.Store(uidSet, &imap.StoreFlags{
			Op:     imap.StoreFlagsAdd,
			Silent: true,
			Flags:  []imap.Flag{imap.FlagDeleted},
		}, nil).Close(); err != nil {
			return fmt.Errorf("UID STORE \\Deleted: %w", err)
		}
		return nil
	})
}

// Expunge permanently removes every \Deleted message in the selected mailbox.
func (c *Client) Expunge(ctx context.Context) error {
	return c.withConn(ctx, func(conn *imapclient.Client) error {
		if c.selected == "" {
			return fmt.Errorf("imap: Expunge: no mailbox selected")
		}
		return conn.Expunge().Close()
	})
}

// Close logs out and disconnects from the IMAP server.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	c.selected = ""
	return conn.Logout().Wait()
}

var _ mailstore.Store = (*Client)(nil)
