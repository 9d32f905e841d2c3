// Package auth answers whether the current invocation carries a verified
// credential for an identity. Signature checks happen upstream (JWT middleware);
// the engine only consumes the yes/no answer.
package auth

import (
	"context"

	"github.com/ayo6706/custody-engine/internal/domain"
)

// Roles carried in tokens.
const (
	RoleUser   = "user"
	RoleAdmin  = "admin"
	RoleSystem = "system"
)

type contextKey string

const (
	identityContextKey contextKey = "identity"
	roleContextKey     contextKey = "identity_role"
)

// Gate is the authorization capability consumed by the services.
type Gate interface {
	Authorized(ctx context.Context, id domain.Identity) bool
}

// WithIdentity returns ctx carrying a verified identity and its token role.
func WithIdentity(ctx context.Context, id domain.Identity, role string) context.Context {
	ctx = context.WithValue(ctx, identityContextKey, id)
	return context.WithValue(ctx, roleContextKey, role)
}

// IdentityFromContext returns the verified identity, or "".
func IdentityFromContext(ctx context.Context) domain.Identity {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(identityContextKey).(domain.Identity); ok {
		return v
	}
	return ""
}

// RoleFromContext returns the token role of the verified identity.
func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(roleContextKey).(string); ok {
		return v
	}
	return ""
}

// ContextGate authorizes exactly the identity verified for the request.
// Tokens with the system role may act for any identity.
type ContextGate struct{}

func (ContextGate) Authorized(ctx context.Context, id domain.Identity) bool {
	if id == "" {
		return false
	}
	if RoleFromContext(ctx) == RoleSystem {
		return true
	}
	return IdentityFromContext(ctx) == id
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context, id domain.Identity) bool

func (f GateFunc) Authorized(ctx context.Context, id domain.Identity) bool {
	return f(ctx, id)
}

// AllowAll authorizes every non-empty identity. Use only in tests and
// single-operator tooling.
var AllowAll Gate = GateFunc(func(_ context.Context, id domain.Identity) bool {
	return id != ""
})

// Deny authorizes nobody in the set.
func Deny(ids ...domain.Identity) Gate {
	denied := make(map[domain.Identity]struct{}, len(ids))
	for _, id := range ids {
		denied[id] = struct{}{}
	}
	return GateFunc(func(_ context.Context, id domain.Identity) bool {
		_, blocked := denied[id]
		return id != "" && !blocked
	})
}
