// Package middleware provides authentication and scope middleware for the
// Octopus API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/octopus-bim/octopus/internal/logger"
	"github.com/octopus-bim/octopus/pkg/api/handlers"
	"github.com/octopus-bim/octopus/pkg/auth"
)

// Authenticator establishes the request principal and provisions the user
// row. Two modes are supported:
//
//   - development: every request runs as a fixed local principal
//   - oidc: requests carry a Bearer token validated against the signing key;
//     this also accepts tokens minted by the built-in OAuth2 server
func Authenticator(mode string, dev *auth.Principal, tokens *auth.TokenService, authz *auth.Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var principal *auth.Principal

			switch mode {
			case "development":
				p := *dev
				principal = &p
			default:
				header := r.Header.Get("Authorization")
				if !strings.HasPrefix(header, "Bearer ") {
					handlers.Unauthorized(w, "missing bearer token")
					return
				}
				claims, err := tokens.ValidateAccessToken(strings.TrimPrefix(header, "Bearer "))
				if err != nil {
					handlers.Unauthorized(w, "invalid or expired token")
					return
				}
				principal = &auth.Principal{
					Subject:     claims.Subject,
					ClientID:    claims.ClientID,
					WorkspaceID: claims.WorkspaceID,
					Scopes:      claims.Scopes(),
				}
			}

			user, err := authz.ProvisionUser(r.Context(), principal)
			if err != nil {
				logger.Error("failed to provision user", "subject", principal.Subject, "error", err)
				handlers.Unauthorized(w, "failed to resolve user")
				return
			}

			ctx := auth.WithPrincipal(r.Context(), principal)
			ctx = auth.WithUser(ctx, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects requests whose token does not carry the scope.
// First-party principals without scopes pass.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFromContext(r.Context())
			if p == nil {
				handlers.Unauthorized(w, "authentication required")
				return
			}
			if !p.HasScope(scope) {
				handlers.Forbidden(w, "token does not carry the "+scope+" scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
