package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/botdesk/botdesk/internal/api/response"
	"github.com/botdesk/botdesk/internal/auth"
	"github.com/botdesk/botdesk/internal/user"
)

const userKey contextKey = "user"

// IdentityResolver resolves an Authorization header to the live user record.
type IdentityResolver interface {
	Resolve(ctx context.Context, header string) (*user.User, error)
}

// Authenticate is middleware that resolves the bearer token to a User via the
// resolver. Missing, invalid or expired tokens return 401; storage failures return 500.
func Authenticate(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			u, err := resolver.Resolve(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, auth.ErrUnauthorized) {
					response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "A valid bearer token is required", requestID)
					return
				}
				slog.Error("failed to resolve identity", "error", err, "requestId", requestID)
				response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Authentication failed", requestID)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser retrieves the authenticated User from the request context.
func GetUser(ctx context.Context) *user.User {
	if u, ok := ctx.Value(userKey).(*user.User); ok {
		return u
	}
	return nil
}

// WithUser stores u in ctx. Used by handler tests.
func WithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}
