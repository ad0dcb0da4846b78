package server

import (
	"net/http"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
)

// BasicRouter is a small [Router] over [http.ServeMux] with per-path method dispatch.
type BasicRouter struct {
	mux         *http.ServeMux
	methods     map[string]map[string]http.Handler
	middlewares []Middleware
}

// NewBasicRouter creates a new [BasicRouter] instance.
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{
		mux:     http.NewServeMux(),
		methods: map[string]map[string]http.Handler{},
	}
}

// NewRouter creates a [BasicRouter] with request ids, panic recovery and request logging installed.
func NewRouter(logger *log.Logger) *BasicRouter {
	r := NewBasicRouter()
	r.Use(RequestID(), Recover(logger), Logging(logger))
	return r
}

// Use adds [Middleware] to the stack. Only handlers registered afterwards are wrapped.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers handler for method on path. Several methods may share a path; other methods get 405.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	byMethod, ok := r.methods[path]
	if !ok {
		byMethod = map[string]http.Handler{}
		r.methods[path] = byMethod
		r.mux.Handle(path, r.Apply(r.dispatch(path)))
	}
	byMethod[strings.ToUpper(method)] = handler
}

func (r *BasicRouter) dispatch(path string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		byMethod := r.methods[path]
		h, ok := byMethod[req.Method]
		if !ok {
			allowed := make([]string, 0, len(byMethod))
			for m := range byMethod {
				allowed = append(allowed, m)
			}
			slices.Sort(allowed)
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.ServeHTTP(w, req)
	})
}

// Handler registers a custom Handler implementation on all of its routes.
func (r *BasicRouter) Handler(handler Handler) {
	wrapped := r.Apply(handler)
	for _, route := range handler.Routes() {
		r.mux.Handle(route, wrapped)
	}
}

// ServeHTTP implements [http.Handler] for the entire router.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Apply wraps a handler with all registered middleware, the first added being outermost.
func (r *BasicRouter) Apply(handler http.Handler) http.Handler {
	wrapped := handler
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		wrapped = r.middlewares[i](wrapped)
	}
	return wrapped
}
