package authz

import (
	"context"
	"strings"
)

// Principal is the verified caller of a request. Role is one of the Role*
// constants; Subject is the token subject used in audit fields.
type Principal struct {
	Subject string
	Role    string
	Name    string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	p.Role = strings.TrimSpace(strings.ToLower(p.Role))
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Actor names the principal for RequestedBy and RejectedBy fields.
func (p Principal) Actor() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Subject != "" {
		return p.Subject
	}
	return p.Role
}
