package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jacksonlee411/lease-signflow/internal/config"
	"github.com/jacksonlee411/lease-signflow/internal/routing"
	"github.com/jacksonlee411/lease-signflow/pkg/authz"
	"github.com/jacksonlee411/lease-signflow/pkg/logger"
)

func loadAuthorizer(cfg config.AuthzConfig) (*authz.Authorizer, error) {
	modelPath, err := resolveConfigPath(cfg.ModelPath, "config/access/model.conf")
	if err != nil {
		return nil, err
	}
	policyPath, err := resolveConfigPath(cfg.PolicyPath, "config/access/policy.csv")
	if err != nil {
		return nil, err
	}
	mode, err := authz.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	return authz.NewAuthorizer(modelPath, policyPath, mode)
}

// resolveConfigPath returns path when it exists, otherwise walks up from the
// working directory looking for def.
func resolveConfigPath(path string, def string) (string, error) {
	if path != "" && path != def {
		if _, err := os.Stat(path); err != nil {
			return "", err
		}
		return path, nil
	}
	p := def
	for range 8 {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		p = filepath.Join("..", p)
	}
	return "", errors.New("server: " + def + " not found")
}

type authorizer interface {
	Authorize(subject string, object string, action string) (allowed bool, enforced bool, err error)
}

func withAuthz(classifier *routing.Classifier, a authorizer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := classify(classifier, r.URL.Path)
		object, action, shouldCheck := authzRequirementForRoute(r.Method, r.URL.Path)
		if !shouldCheck || a == nil {
			next.ServeHTTP(w, r)
			return
		}

		role := authz.RoleAnonymous
		if p, ok := authz.PrincipalFrom(r.Context()); ok && p.Role != "" {
			role = p.Role
		}
		subject := authz.SubjectFromRole(role)

		allowed, enforced, err := a.Authorize(subject, object, action)
		if err != nil {
			logger.Error(r.Context(), "authz failed", "error", err, "subject", subject, "action", action)
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "authz_error", "authz error")
			return
		}
		if !allowed && !enforced {
			logger.Warn(r.Context(), "authz shadow deny", "subject", subject, "object", object, "action", action)
		}
		if enforced && !allowed {
			routing.WriteError(w, r, rc, http.StatusForbidden, "forbidden", "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

const contractsPrefix = "/signing/api/contracts/"

func authzRequirementForRoute(method string, path string) (object string, action string, ok bool) {
	rest, found := strings.CutPrefix(path, contractsPrefix)
	if !found {
		return "", "", false
	}
	_, tail, found := strings.Cut(rest, "/")
	if !found {
		return "", "", false
	}

	switch {
	case tail == "workflow" && method == http.MethodGet:
		return authz.ObjectSigningWorkflow, authz.ActionRead, true
	case method != http.MethodPost:
		return "", "", false
	}

	switch tail {
	case "workflow:request":
		return authz.ObjectSigningWorkflow, authz.ActionRequest, true
	case "workflow:reject":
		return authz.ObjectSigningWorkflow, authz.ActionReject, true
	case "signatures":
		return authz.ObjectSigningWorkflow, authz.ActionSign, true
	case "delegation":
		return authz.ObjectSigningWorkflow, authz.ActionDelegate, true
	case "observers":
		return authz.ObjectSigningWorkflow, authz.ActionInvite, true
	default:
		return "", "", false
	}
}
