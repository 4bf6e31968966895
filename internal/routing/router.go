package routing

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
)

// Router registers handlers with their route class so failures outside the
// handler (404, 405, panics) still answer in the class's error format.
type Router struct {
	classifier *Classifier
	mux        chi.Router
}

func NewRouter(classifier *Classifier) *Router {
	mux := chi.NewRouter()
	r := &Router{classifier: classifier, mux: mux}
	mux.NotFound(func(w http.ResponseWriter, req *http.Request) {
		WriteError(w, req, r.classify(req.URL.Path), http.StatusNotFound, "not_found", "not found")
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		WriteError(w, req, r.classify(req.URL.Path), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

// Use appends middleware. It must be called before the first Handle.
func (r *Router) Use(mw ...func(http.Handler) http.Handler) {
	r.mux.Use(mw...)
}

// Handle panics when a classifier is set and the allowlist does not declare
// method for pattern.
func (r *Router) Handle(rc RouteClass, method string, pattern string, h http.Handler) {
	if r.classifier != nil && !r.classifier.Declares(method, pattern) {
		panic(fmt.Sprintf("routing: %s %s missing from allowlist", method, pattern))
	}
	r.mux.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.ErrorContext(req.Context(), "handler panic",
					slog.Any("panic", rec),
					slog.String("path", req.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				WriteError(w, req, rc, http.StatusInternalServerError, "internal_error", "internal error")
			}
		}()
		h.ServeHTTP(w, req)
	}))
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) classify(path string) RouteClass {
	if r.classifier == nil {
		return RouteClassUnknown
	}
	return r.classifier.Classify(path)
}
