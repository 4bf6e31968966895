package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jacksonlee411/lease-signflow/internal/config"
	"github.com/jacksonlee411/lease-signflow/internal/routing"
	"github.com/jacksonlee411/lease-signflow/modules/signing/presentation/controllers"
)

type HandlerOptions struct {
	AllowlistPath string
	Service       controllers.WorkflowAPI
	Inviter       controllers.ObserverInviter
	Verifier      verifier
	Authorizer    authorizer
	RateLimit     config.RateLimitConfig
	// Ready reports backend health for /healthz; nil means always ready.
	Ready func(ctx context.Context) error
}

// NewHandlerWithOptions builds the HTTP surface: request id, access log,
// bearer principal, rate limit and authz middleware in front of the signing
// routes and health probes.
func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	a, err := routing.LoadAllowlist(opts.AllowlistPath)
	if err != nil {
		return nil, err
	}
	classifier, err := routing.NewClassifier(a, "server")
	if err != nil {
		return nil, err
	}

	var limiter *clientLimiter
	if opts.RateLimit.RPS > 0 {
		limiter = newClientLimiter(opts.RateLimit.RPS, opts.RateLimit.Burst)
	}

	r := routing.NewRouter(classifier)
	r.Use(
		withRequestID,
		withAccessLog,
		func(next http.Handler) http.Handler { return withPrincipal(classifier, opts.Verifier, next) },
		func(next http.Handler) http.Handler { return withRateLimit(classifier, limiter, next) },
		func(next http.Handler) http.Handler { return withAuthz(classifier, opts.Authorizer, next) },
	)

	r.Handle(routing.RouteClassOps, http.MethodGet, "/health", http.HandlerFunc(handleHealth))
	r.Handle(routing.RouteClassOps, http.MethodGet, "/healthz", handleReady(opts.Ready))

	controllers.WorkflowController{Service: opts.Service, Inviter: opts.Inviter}.Register(r)
	return r, nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReady(ready func(ctx context.Context) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
