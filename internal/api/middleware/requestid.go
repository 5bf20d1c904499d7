package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/botdesk/botdesk/internal/events"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// RequestID is middleware that accepts an incoming X-Request-ID or generates
// one, echoes it on the response, and makes it available to handlers and to
// published events.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, id)
		ctx = events.WithRequestID(ctx, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
