package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/reportgate/reportgate/pkg/httputil"
	"github.com/reportgate/reportgate/pkg/identity"
)

type contextKey string

const principalKey contextKey = "principal"

// AuthMiddleware validates the Bearer access token and loads the caller
// into the request context. The role is read from the database on every
// request so a demotion takes effect immediately.
func AuthMiddleware(tokens *identity.TokenIssuer, users identity.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				httputil.WriteUnauthorized(w, "missing bearer token")
				return
			}

			userID, err := tokens.Validate(strings.TrimPrefix(header, "Bearer "), identity.TokenTypeAccess)
			if err != nil {
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			user, err := users.GetUser(userID)
			if err != nil {
				httputil.WriteUnauthorized(w, "unknown user")
				return
			}

			principal := identity.Principal{UserID: user.ID, Role: user.Role}
			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects non-admin principals.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFrom(r.Context())
		if !ok {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		if principal.Role != identity.RoleAdmin {
			httputil.WriteForbidden(w, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PrincipalFrom extracts the authenticated principal.
func PrincipalFrom(ctx context.Context) (identity.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(identity.Principal)
	return principal, ok
}
