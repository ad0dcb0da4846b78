package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/playsync/internal/shared"
)

func TestBasicRouter(t *testing.T) {
	ok := func(body string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, body) })
	}

	t.Run("Method Dispatch", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handle(http.MethodGet, "/status", ok("get"))
		r.Handle(http.MethodPost, "/status", ok("post"))

		for method, want := range map[string]string{http.MethodGet: "get", http.MethodPost: "post"} {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(method, "/status", nil))
			if rec.Body.String() != want {
				t.Errorf("%s: expected %q, got %q", method, want, rec.Body.String())
			}
		}

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/status", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
		if got := rec.Header().Get("Allow"); got != "GET, POST" {
			t.Errorf("unexpected Allow header %q", got)
		}
	})

	t.Run("Middleware Order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mark("outer"), mark("inner"))
		r.Handle(http.MethodGet, "/", ok(""))
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if strings.Join(order, ",") != "outer,inner" {
			t.Errorf("unexpected order %v", order)
		}
	})

	t.Run("Request ID", func(t *testing.T) {
		r := NewRouter(shared.NewLogger(io.Discard))
		var seen string
		r.Handle(http.MethodGet, "/", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			seen = req.Header.Get(RequestIDHeader)
		}))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
			t.Errorf("expected generated request id to be echoed, got %q / %q", seen, rec.Header().Get(RequestIDHeader))
		}

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc")
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Header().Get(RequestIDHeader) != "abc" {
			t.Errorf("expected incoming request id to be kept, got %q", rec.Header().Get(RequestIDHeader))
		}
	})

	t.Run("Recover", func(t *testing.T) {
		r := NewRouter(shared.NewLogger(io.Discard))
		r.Handle(http.MethodGet, "/boom", http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("Status Handler", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handle(http.MethodGet, "/status", StatusHandler(func() any { return map[string]int{"pending": 2} }))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		if strings.TrimSpace(rec.Body.String()) != `{"pending":2}` {
			t.Errorf("unexpected body %q", rec.Body.String())
		}
	})
}
