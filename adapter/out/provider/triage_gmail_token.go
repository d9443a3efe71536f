package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"mailtriage/pkg/apperr"
	"mailtriage/pkg/logger"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// =============================================================================
// Token Store
// =============================================================================

// GmailScopes allow reading, marking read and sending.
var GmailScopes = []string{gmail.GmailModifyScope}

// LoadOAuthConfig reads an installed-app client secret file
// (credentials.json from the Google Cloud console).
func LoadOAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, apperr.ConfigError("GOOGLE_CREDENTIALS_FILE", err.Error())
	}
	cfg, err := google.ConfigFromJSON(b, GmailScopes...)
	if err != nil {
		return nil, apperr.ConfigError("GOOGLE_CREDENTIALS_FILE", err.Error())
	}
	return cfg, nil
}

// TokenStore persists the OAuth token as JSON on disk.
type TokenStore struct {
	path string
	mu   sync.Mutex
}

func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Load returns the saved token. A missing file reports AUTH_REQUIRED.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.AuthRequired("gmail", err)
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, apperr.AuthRequired("gmail", fmt.Errorf("parse token file: %w", err))
	}
	return &tok, nil
}

// Save writes the token with owner-only permissions.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, b, 0o600)
}

// Remove deletes the token file; a missing file is not an error.
func (s *TokenStore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// persistingTokenSource saves every refreshed token so the next run can
// reuse it.
type persistingTokenSource struct {
	base  oauth2.TokenSource
	store *TokenStore
	mu    sync.Mutex
	last  string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, apperr.AuthRequired("gmail", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if err := p.store.Save(tok); err != nil {
			logger.WithError(err).Warn("[Gmail] failed to persist refreshed token")
		}
	}
	return tok, nil
}

// TokenSource loads the stored token and returns a refreshing source that
// writes refreshed tokens back to the store.
func TokenSource(ctx context.Context, cfg *oauth2.Config, store *TokenStore) (oauth2.TokenSource, error) {
	tok, err := store.Load()
	if err != nil {
		return nil, err
	}
	if !tok.Valid() && tok.RefreshToken == "" {
		return nil, apperr.AuthRequired("gmail", errors.New("token expired and no refresh token"))
	}
	return &persistingTokenSource{
		base:  cfg.TokenSource(ctx, tok),
		store: store,
		last:  tok.AccessToken,
	}, nil
}

// =============================================================================
// Installed-app authorization flow
// =============================================================================

// Authorize runs the loopback OAuth flow: it prints the consent URL to w,
// waits for Google to redirect to a local listener, exchanges the code and
// saves the token.
func Authorize(ctx context.Context, cfg *oauth2.Config, store *TokenStore, w io.Writer) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, apperr.OAuthFailed("gmail", err)
	}
	defer ln.Close()

	flowCfg := *cfg
	flowCfg.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())

	state := oauth2.GenerateVerifier()
	verifier := oauth2.GenerateVerifier()
	authURL := flowCfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)
	fmt.Fprintf(w, "Open this URL in your browser to authorize mailbox access:\n\n%s\n\n", authURL)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	srv := &http.Server{Handler: http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(rw, "state mismatch", http.StatusBadRequest)
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(rw, e, http.StatusBadRequest)
			select {
			case errCh <- fmt.Errorf("consent denied: %s", e):
			default:
			}
			return
		}
		fmt.Fprintln(rw, "Authorization complete. You can close this window.")
		select {
		case codeCh <- q.Get("code"):
		default:
		}
	})}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, apperr.OAuthFailed("gmail", err)
	case <-ctx.Done():
		return nil, apperr.OAuthFailed("gmail", ctx.Err())
	}

	tok, err := flowCfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, apperr.OAuthFailed("gmail", err)
	}
	if err := store.Save(tok); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	return tok, nil
}
