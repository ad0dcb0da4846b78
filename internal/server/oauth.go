package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sync"

	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	"golang.org/x/oauth2"
)

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))

// OAuthHandler handles the authorization code callback of the account link flow.
//
// Only the first callback is processed. The exchanged token is saved to tokenPath (when set) before it is
// delivered on [OAuthHandler.Result].
type OAuthHandler struct {
	config     *oauth2.Config
	state      string
	route      string
	tokenPath  string
	resultChan chan OAuthResult
	once       sync.Once
	mu         sync.Mutex
	hit        bool
}

// NewOAuthHandler creates a handler for config's redirect URL. state must be random.
func NewOAuthHandler(config *oauth2.Config, state, tokenPath string) *OAuthHandler {
	route := "/callback"
	if u, err := url.Parse(config.RedirectURL); err == nil && u.Path != "" {
		route = u.Path
	}
	return &OAuthHandler{
		config:     config,
		state:      state,
		route:      route,
		tokenPath:  tokenPath,
		resultChan: make(chan OAuthResult, 1),
	}
}

// Routes returns the path of the redirect URL.
func (h *OAuthHandler) Routes() []string {
	return []string{h.route}
}

// ServeHTTP validates the state, exchanges the code and reports the outcome.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.hit = true
	h.mu.Unlock()

	q := r.URL.Query()
	if q.Get("state") != h.state {
		h.fail(w, http.StatusBadRequest, fmt.Errorf("%w: invalid state parameter", shared.ErrAuthFailed))
		return
	}

	code := q.Get("code")
	if code == "" {
		h.fail(w, http.StatusBadRequest, fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, q.Get("error"), q.Get("error_description")))
		return
	}

	token, err := h.config.Exchange(r.Context(), code)
	if err != nil {
		h.fail(w, http.StatusBadGateway, fmt.Errorf("%w: token exchange failed: %v", shared.ErrAuthFailed, err))
		return
	}

	if h.tokenPath != "" {
		if err := services.SaveToken(h.tokenPath, token); err != nil {
			h.fail(w, http.StatusInternalServerError, err)
			return
		}
	}

	h.Send(OAuthResult{Token: token})
	h.render(w, http.StatusOK, "Account linked", "You can close this window and return to the terminal.")
}

func (h *OAuthHandler) fail(w http.ResponseWriter, status int, err error) {
	h.Send(OAuthResult{err: err})
	h.render(w, status, "Authorization failed", err.Error())
}

func (h *OAuthHandler) render(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	resultPage.Execute(w, struct{ Title, Message string }{title, message})
}

// Send delivers the result (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the channel receiving exactly one result.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

// Wait blocks until the callback was processed or ctx expires.
func (h *OAuthHandler) Wait(ctx context.Context) (*oauth2.Token, error) {
	select {
	case res := <-h.resultChan:
		if res.err != nil {
			return nil, res.err
		}
		return res.Token, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for authorization", shared.ErrTimeout)
	}
}
