package middleware

import (
	"context"
	"net/http"

	"timeoff/internal/domain/auth"
	"timeoff/internal/transport/http/api"
)

type ctxKey string

const ctxKeyPrincipal ctxKey = "principal"

// Authenticator is satisfied by auth.Service.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

// RequireAuth rejects the request unless it carries a valid, unrevoked
// bearer token for a live identity.
func RequireAuth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.ParseBearer(r.Header.Get("Authorization"))
			if err != nil {
				api.FailError(w, err, GetRequestID(r.Context()))
				return
			}
			principal, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				api.FailError(w, err, GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

func GetPrincipal(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(auth.Principal)
	return p, ok
}
