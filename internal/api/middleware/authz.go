package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/botdesk/botdesk/internal/api/response"
	"github.com/botdesk/botdesk/internal/entitlement"
	"github.com/botdesk/botdesk/internal/user"
)

// Authorizer evaluates a capability for a resolved user.
type Authorizer interface {
	Authorize(ctx context.Context, u *user.User, c entitlement.Capability) error
}

// RequireAdmin returns middleware that rejects users without the admin
// capability with 403. Premium status plays no part in this check.
func RequireAdmin(policy Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			u := GetUser(r.Context())
			if u == nil {
				response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "A valid bearer token is required", requestID)
				return
			}

			if err := policy.Authorize(r.Context(), u, entitlement.Admin()); err != nil {
				if errors.Is(err, entitlement.ErrAdminRequired) {
					slog.Info("admin capability denied", "userId", u.ID, "requestId", requestID)
					response.Err(w, http.StatusForbidden, "FORBIDDEN", "Admin access required", requestID)
					return
				}
				slog.Error("failed to authorize admin", "error", err, "requestId", requestID)
				response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Authorization failed", requestID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
