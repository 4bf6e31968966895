package authz

import (
	"errors"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeShadow   Mode = "shadow"
	ModeDisabled Mode = "disabled"
)

// ParseMode accepts enforce|shadow|disabled. Disabled additionally requires
// AUTHZ_UNSAFE_ALLOW_DISABLED=1 in the environment.
func ParseMode(raw string) (Mode, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ModeEnforce, nil
	}
	switch Mode(raw) {
	case ModeEnforce, ModeShadow:
		return Mode(raw), nil
	case ModeDisabled:
		if os.Getenv("AUTHZ_UNSAFE_ALLOW_DISABLED") != "1" {
			return "", errors.New("authz: mode disabled requires AUTHZ_UNSAFE_ALLOW_DISABLED=1")
		}
		return ModeDisabled, nil
	default:
		return "", errors.New("authz: invalid mode (expected enforce|shadow|disabled)")
	}
}

func ModeFromEnv() (Mode, error) {
	return ParseMode(os.Getenv("AUTHZ_MODE"))
}

type Authorizer struct {
	enforcer *casbin.Enforcer
	mode     Mode
}

func NewAuthorizer(modelPath string, policyPath string, mode Mode) (*Authorizer, error) {
	adapter := fileadapter.NewAdapter(policyPath)
	enforcer, err := casbin.NewEnforcer(modelPath)
	if err != nil {
		return nil, err
	}
	enforcer.SetAdapter(adapter)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	return &Authorizer{enforcer: enforcer, mode: mode}, nil
}

func SubjectFromRole(role string) string {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		role = RoleAnonymous
	}
	return "role:" + role
}

func (a *Authorizer) Mode() Mode { return a.mode }

// Authorize reports whether subject may perform action on object. In shadow mode
// the decision is computed but enforced is false, so callers only log denials.
func (a *Authorizer) Authorize(subject string, object string, action string) (allowed bool, enforced bool, err error) {
	switch a.mode {
	case ModeDisabled:
		return true, false, nil
	case ModeShadow:
		ok, err := a.enforcer.Enforce(subject, object, action)
		if err != nil {
			return false, false, err
		}
		return ok, false, nil
	case ModeEnforce:
		ok, err := a.enforcer.Enforce(subject, object, action)
		if err != nil {
			return false, true, err
		}
		return ok, true, nil
	default:
		return false, false, errors.New("authz: unknown mode")
	}
}
