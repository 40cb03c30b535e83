// Package auth provides principal extraction, user provisioning, RBAC and
// scope checks for the Octopus API.
//
// RBAC gates which resource a user may touch; scopes gate which capability
// a token may exercise. Endpoint handlers compose both.
package auth

import (
	"context"
	"slices"

	"github.com/octopus-bim/octopus/pkg/models"
)

// Principal is the authenticated identity attached to a request.
//
// Subject is stable and globally unique. Scopes are empty for first-party
// sessions (dev mode, OIDC) and carry the granted scope set for tokens
// issued by the OAuth2 server.
type Principal struct {
	Subject     string
	Email       string
	DisplayName string

	// ClientID and WorkspaceID are set for OAuth2 access tokens.
	ClientID    string
	WorkspaceID string

	Scopes []string
}

// HasScope reports whether the principal carries the scope. Principals
// without any scopes (first-party sessions) implicitly carry all scopes.
func (p *Principal) HasScope(scope string) bool {
	if len(p.Scopes) == 0 {
		return true
	}
	return slices.Contains(p.Scopes, scope)
}

// HasAnyScope reports whether the principal carries at least one of the scopes.
func (p *Principal) HasAnyScope(scopes ...string) bool {
	if len(p.Scopes) == 0 {
		return true
	}
	for _, s := range scopes {
		if slices.Contains(p.Scopes, s) {
			return true
		}
	}
	return false
}

// HasAllScopes reports whether the principal carries every one of the scopes.
func (p *Principal) HasAllScopes(scopes ...string) bool {
	if len(p.Scopes) == 0 {
		return true
	}
	for _, s := range scopes {
		if !slices.Contains(p.Scopes, s) {
			return false
		}
	}
	return true
}

// Well-known scopes.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

// Context key types for storing identity.
type contextKey string

const (
	principalContextKey contextKey = "principal"
	userContextKey      contextKey = "user"
)

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext retrieves the principal, or nil if unauthenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}

// WithUser returns a context carrying the provisioned user row.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext retrieves the provisioned user, or nil.
func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userContextKey).(*models.User)
	return u
}
