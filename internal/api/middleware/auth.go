package middleware

import (
	"context"
	"net/http"

	"github.com/gatherly-live/server/internal/api/problem"
	"github.com/gatherly-live/server/internal/auth"
)

const identityKey contextKey = "identity"

// RequireAuth rejects requests without a valid bearer token and stores the
// authenticated identity in the request context.
func RequireAuth(jwt *auth.JWTManager, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized,
					"Authentication Required", err, env,
					problem.WithDetail("a bearer token is required"))
				return
			}

			identity, err := jwt.Authenticate(token)
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized,
					"Authentication Required", err, env,
					problem.WithDetail("invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth resolves an identity when a valid token is present but lets
// anonymous requests through. Endpoints that personalize public responses
// use it.
func OptionalAuth(jwt *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err == nil {
				if identity, err := jwt.Authenticate(token); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), identityKey, identity))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity returns a context carrying the given identity, for callers
// that authenticate outside the middleware chain.
func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(auth.Identity)
	return identity, ok
}
