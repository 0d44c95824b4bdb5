package middleware

import (
	"net/http"
	"slices"

	"timeoff/internal/domain/identity"
	"timeoff/internal/transport/http/api"
)

// RequireRole admits principals whose live role is one of roles. It must
// run after RequireAuth.
func RequireRole(roles ...identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipal(r.Context())
			if !ok {
				api.Fail(w, http.StatusUnauthorized, "token_missing", "authentication required", GetRequestID(r.Context()))
				return
			}
			if !slices.Contains(roles, principal.Role) {
				api.Fail(w, http.StatusForbidden, "forbidden", "insufficient role", GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
