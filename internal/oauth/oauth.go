// Package oauth provides a generic OIDC-discovery-based OAuth2 login
// flow, for IMAP accounts whose server authenticates over XOAUTH2
// instead of a plain password (e.g. Gmail-via-IMAP or Fastmail used
// purely as blob storage for a Session's mailbox).
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// providerExtraClaims carries discovery-document fields go-oidc's core
// Provider type doesn't expose directly, such as the device
// authorization endpoint used by the headless flow.
type providerExtraClaims struct {
	DeviceAuthorizationEndpoint string `json:"device_authorization_endpoint"`
}

// Manager handles OAuth2 token acquisition and storage for accounts
// authenticating against a single OIDC issuer.
type Manager struct {
	config    *oauth2.Config
	deviceURL string
	tokensDir string
	logger    *slog.Logger
}

// NewManager discovers issuerURL's OIDC configuration and builds a
// Manager that can authorize and refresh tokens for clientID/scopes
// against it. tokensDir holds one JSON token file per account.
func NewManager(ctx context.Context, issuerURL, clientID, clientSecret string, scopes []string, tokensDir string, logger *slog.Logger) (*Manager, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oauth: discover issuer %s: %w", issuerURL, err)
	}

	var extra providerExtraClaims
	if err := provider.Claims(&extra); err != nil {
		logger = logFallback(logger)
		logger.Warn("oauth: provider discovery document missing extra claims", "issuer", issuerURL, "error", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		deviceURL: extra.DeviceAuthorizationEndpoint,
		tokensDir: tokensDir,
		logger:    logger,
	}, nil
}

func logFallback(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// TokenSource returns an auto-refreshing token source for account. The
// returned source satisfies golang.org/x/oauth2.TokenSource, suitable
// for internal/imap.NewOAuthClient.
func (m *Manager) TokenSource(ctx context.Context, account string) (oauth2.TokenSource, error) {
	token, err := m.loadToken(account)
	if err != nil {
		return nil, fmt.Errorf("no valid token for %s: %w", account, err)
	}

	ts := m.config.TokenSource(ctx, token)

	newToken, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if newToken.AccessToken != token.AccessToken {
		if err := m.saveToken(account, newToken); err != nil {
			m.logger.Warn("failed to save refreshed token", "account", account, "error", err)
		}
	}

	return ts, nil
}

// HasToken reports whether a usable token exists for account.
func (m *Manager) HasToken(account string) bool {
	_, err := m.loadToken(account)
	return err == nil
}

// Authorize runs the OAuth flow for account and persists the resulting
// token. headless selects the device authorization grant over the
// local-server browser redirect flow.
func (m *Manager) Authorize(ctx context.Context, account string, headless bool) error {
	var token *oauth2.Token
	var err error

	if headless {
		token, err = m.deviceFlow(ctx)
	} else {
		token, err = m.browserFlow(ctx)
	}
	if err != nil {
		return err
	}

	return m.saveToken(account, token)
}

// browserFlow opens a browser for OAuth authorization via a local
// loopback redirect, the way the teacher's Gmail browser flow works.
func (m *Manager) browserFlow(ctx context.Context) (*oauth2.Token, error) {
	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(stateBytes)

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	server := &http.Server{Addr: "localhost:8089", Handler: mux}

	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			errChan <- fmt.Errorf("state mismatch: possible CSRF attack")
			fmt.Fprintf(w, "Error: state mismatch")
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no code in callback")
			fmt.Fprintf(w, "Error: no authorization code received")
			return
		}
		codeChan <- code
		fmt.Fprintf(w, "Authorization successful! You can close this window.")
	})

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	defer func() { _ = server.Shutdown(ctx) }()

	m.config.RedirectURL = "http://localhost:8089/callback"
	authURL := m.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Printf("Opening browser for authorization...\n")
	fmt.Printf("If browser doesn't open, visit:\n%s\n\n", authURL)
	if err := openBrowser(authURL); err != nil {
		m.logger.Warn("failed to open browser", "error", err)
	}

	select {
	case code := <-codeChan:
		return m.config.Exchange(ctx, code)
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// deviceFlow uses RFC 8628 device authorization, for headless hosts.
// The provider must have published a device_authorization_endpoint in
// its discovery document.
func (m *Manager) deviceFlow(ctx context.Context) (*oauth2.Token, error) {
	if m.deviceURL == "" {
		return nil, fmt.Errorf("oauth: issuer does not advertise a device authorization endpoint")
	}

	resp, err := http.PostForm(m.deviceURL, map[string][]string{
		"client_id": {m.config.ClientID},
		"scope":     {strings.Join(m.config.Scopes, " ")},
	})
	if err != nil {
		return nil, fmt.Errorf("request device code: %w", err)
	}
	defer resp.Body.Close()

	var deviceResp struct {
		DeviceCode      string `json:"device_code"`
		UserCode        string `json:"user_code"`
		VerificationURL string `json:"verification_uri"`
		ExpiresIn       int    `json:"expires_in"`
		Interval        int    `json:"interval"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&deviceResp); err != nil {
		return nil, fmt.Errorf("parse device response: %w", err)
	}

	fmt.Printf("\n")
	fmt.Printf("To authorize mailfile, visit:\n")
	fmt.Printf("  %s\n\n", deviceResp.VerificationURL)
	fmt.Printf("And enter code: %s\n\n", deviceResp.UserCode)
	fmt.Printf("Waiting for authorization...\n")

	interval := time.Duration(deviceResp.Interval) * time.Second
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	deadline := time.Now().Add(time.Duration(deviceResp.ExpiresIn) * time.Second)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		token, err := m.pollForToken(ctx, deviceResp.DeviceCode)
		if err == nil {
			fmt.Printf("Authorization successful!\n")
			return token, nil
		}

		errStr := err.Error()
		if errStr == "oauth error: authorization_pending" || errStr == "oauth error: slow_down" {
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("authorization timed out")
}

// pollForToken polls the discovered token endpoint during device flow.
func (m *Manager) pollForToken(ctx context.Context, deviceCode string) (*oauth2.Token, error) {
	resp, err := http.PostForm(m.config.Endpoint.TokenURL, map[string][]string{
		"client_id":     {m.config.ClientID},
		"client_secret": {m.config.ClientSecret},
		"device_code":   {deviceCode},
		"grant_type":    {"urn:ietf:params:oauth:grant-type:device_code"},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		TokenType    string `json:"token_type"`
		Error        string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, err
	}
	if tokenResp.Error != "" {
		return nil, fmt.Errorf("oauth error: %s", tokenResp.Error)
	}

	return &oauth2.Token{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		TokenType:    tokenResp.TokenType,
		Expiry:       time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}, nil
}

// loadToken loads a saved token for account.
func (m *Manager) loadToken(account string) (*oauth2.Token, error) {
	path := m.tokenPath(account)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// saveToken persists token for account under tokensDir, 0600.
func (m *Manager) saveToken(account string, token *oauth2.Token) error {
	if err := os.MkdirAll(m.tokensDir, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.tokenPath(account), data, 0600)
}

// DeleteToken removes the token file for account, if any.
func (m *Manager) DeleteToken(account string) error {
	err := os.Remove(m.tokenPath(account))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// TokenPath returns the path account's token file would live at.
func (m *Manager) TokenPath(account string) string {
	return m.tokenPath(account)
}

// tokenPath sanitizes account into a filename confined to tokensDir,
// guarding against path traversal via account names drawn from config
// and against an existing token file that is a symlink leading outside
// tokensDir.
func (m *Manager) tokenPath(account string) string {
	safe := strings.ReplaceAll(account, "/", "_")
	safe = strings.ReplaceAll(safe, "\\", "_")
	safe = strings.ReplaceAll(safe, "..", "_")

	path := filepath.Join(m.tokensDir, safe+".json")
	cleanPath := filepath.Clean(path)

	if !strings.HasPrefix(cleanPath, filepath.Clean(m.tokensDir)) {
		return filepath.Join(m.tokensDir, fmt.Sprintf("%x.json", sha256.Sum256([]byte(account))))
	}
	if info, err := os.Lstat(cleanPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		resolved, err := filepath.EvalSymlinks(cleanPath)
		dir, dirErr := filepath.EvalSymlinks(m.tokensDir)
		if err != nil || dirErr != nil || !strings.HasPrefix(resolved, dir+string(filepath.Separator)) {
			return filepath.Join(m.tokensDir, fmt.Sprintf("%x.json", sha256.Sum256([]byte(account))))
		}
	}
	return cleanPath
}

// openBrowser opens the default browser to url.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
