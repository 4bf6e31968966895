package server

import (
	"net/http"
	"strings"

	"github.com/jacksonlee411/lease-signflow/internal/routing"
	"github.com/jacksonlee411/lease-signflow/pkg/authz"
	"github.com/jacksonlee411/lease-signflow/pkg/logger"
)

type verifier interface {
	Verify(raw string) (authz.Principal, error)
}

// withPrincipal resolves the bearer token into an authz.Principal. Ops routes
// pass through unauthenticated.
func withPrincipal(classifier *routing.Classifier, v verifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := classify(classifier, r.URL.Path)
		if rc == routing.RouteClassOps {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := bearerToken(r)
		if !ok {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		if v == nil {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "authentication not configured")
			return
		}
		p, err := v.Verify(raw)
		if err != nil {
			logger.Debug(r.Context(), "token rejected", "error", err)
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		ctx := authz.WithPrincipal(r.Context(), p)
		ctx = logger.WithPrincipal(ctx, p.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func classify(classifier *routing.Classifier, path string) routing.RouteClass {
	if classifier == nil {
		return routing.RouteClassUnknown
	}
	return classifier.Classify(path)
}
