package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/playsync/internal/shared"
	"golang.org/x/oauth2"
)

func TestOAuth(t *testing.T) {
	t.Run("NewOAuthConfig", func(t *testing.T) {
		t.Run("Derives Endpoints From BaseURL", func(t *testing.T) {
			conf, err := NewOAuthConfig(shared.CloudConfig{
				BaseURL:     "https://cloud.example.com/",
				ClientID:    "id",
				RedirectURI: "http://127.0.0.1:3000/callback",
			})
			if err != nil {
				t.Fatalf("NewOAuthConfig() error = %v", err)
			}
			if conf.Endpoint.AuthURL != "https://cloud.example.com/oauth/authorize" {
				t.Errorf("unexpected auth url %s", conf.Endpoint.AuthURL)
			}
			if conf.Endpoint.TokenURL != "https://cloud.example.com/oauth/token" {
				t.Errorf("unexpected token url %s", conf.Endpoint.TokenURL)
			}

			u := AuthURL(conf, "state-123")
			if !strings.Contains(u, "state=state-123") || !strings.Contains(u, "client_id=id") {
				t.Errorf("unexpected auth code url %s", u)
			}
		})

		t.Run("Missing Client ID", func(t *testing.T) {
			if _, err := NewOAuthConfig(shared.CloudConfig{}); !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	})

	t.Run("Token File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth", "token.json")

		if _, err := LoadToken(path); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated for missing file, got %v", err)
		}

		if err := SaveToken(path, &oauth2.Token{AccessToken: "abc", RefreshToken: "def"}); err != nil {
			t.Fatalf("SaveToken() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("token file should exist: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
		}

		tok, err := LoadToken(path)
		if err != nil {
			t.Fatalf("LoadToken() error = %v", err)
		}
		if tok.AccessToken != "abc" || tok.RefreshToken != "def" {
			t.Errorf("unexpected token %+v", tok)
		}

		if err := DeleteToken(path); err != nil {
			t.Fatalf("DeleteToken() error = %v", err)
		}
		if err := DeleteToken(path); err != nil {
			t.Errorf("deleting a missing token should not fail: %v", err)
		}
	})

	t.Run("Malformed Token File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token.json")
		os.WriteFile(path, []byte("nope"), 0600)

		if _, err := LoadToken(path); !errors.Is(err, shared.ErrMalformedPayload) {
			t.Errorf("expected ErrMalformedPayload, got %v", err)
		}
	})

	t.Run("NewAuthorizedClient Signs Requests", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer abc" {
				t.Errorf("expected bearer token, got %q", got)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		conf := &oauth2.Config{ClientID: "id", Endpoint: oauth2.Endpoint{TokenURL: server.URL + "/oauth/token"}}
		client := NewAuthorizedClient(context.Background(), conf, &oauth2.Token{AccessToken: "abc"}, "")

		resp, err := client.Get(server.URL + "/me.json")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
	})
}
