package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/desertthunder/playsync/internal/shared"
	"golang.org/x/oauth2"
)

// NewOAuthConfig builds the [oauth2.Config] of the linked service.
//
// Endpoints default to {base_url}/oauth/authorize and {base_url}/oauth/token.
func NewOAuthConfig(cfg shared.CloudConfig) (*oauth2.Config, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: client_id is required", shared.ErrMissingCredentials)
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	authURL, tokenURL := cfg.AuthURL, cfg.TokenURL
	if authURL == "" {
		authURL = base + "/oauth/authorize"
	}
	if tokenURL == "" {
		tokenURL = base + "/oauth/token"
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
		},
	}, nil
}

// AuthURL returns the URL the user visits to grant access.
func AuthURL(conf *oauth2.Config, state string) string {
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// LoadToken reads a token saved by [SaveToken].
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no token at %s", shared.ErrNotAuthenticated, path)
		}
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("%w: token file: %v", shared.ErrMalformedPayload, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", shared.ErrNotAuthenticated)
	}
	return &tok, nil
}

// SaveToken writes tok to path with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// DeleteToken removes the token file. A missing file is not an error.
func DeleteToken(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// NewAuthorizedClient returns an [http.Client] that signs requests with tok and refreshes it when expired.
//
// Refreshed tokens are written back to path when path is non-empty.
func NewAuthorizedClient(ctx context.Context, conf *oauth2.Config, tok *oauth2.Token, path string) *http.Client {
	src := conf.TokenSource(ctx, tok)
	if path != "" {
		src = &persistingSource{src: src, path: path, last: tok.AccessToken}
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src))
}

type persistingSource struct {
	mu   sync.Mutex
	src  oauth2.TokenSource
	path string
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		_ = SaveToken(p.path, tok)
	}
	return tok, nil
}
