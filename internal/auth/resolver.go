package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/botdesk/botdesk/internal/token"
	"github.com/botdesk/botdesk/internal/user"
)

// ErrUnauthorized is returned when a request carries no usable identity.
var ErrUnauthorized = errors.New("unauthorized")

// UserFinder is the slice of the credential store the resolver needs.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*user.User, error)
}

// Resolver turns an Authorization header into the live user record.
//
// The user is loaded from storage on every call and the token's claims are
// used only to locate it, so premium and admin changes apply on the next
// request rather than at token expiry.
type Resolver struct {
	codec *token.Codec
	users UserFinder
}

// NewResolver creates a Resolver.
func NewResolver(codec *token.Codec, users UserFinder) *Resolver {
	return &Resolver{codec: codec, users: users}
}

// Resolve returns the user for header, or ErrUnauthorized. Any other error is
// a storage failure and must not be treated as anonymous access.
func (r *Resolver) Resolve(ctx context.Context, header string) (*user.User, error) {
	raw, ok := ExtractBearerToken(header)
	if !ok {
		return nil, ErrUnauthorized
	}

	claims, err := r.codec.Verify(raw)
	if err != nil {
		return nil, ErrUnauthorized
	}

	u, err := r.users.FindByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("loading user for token: %w", err)
	}
	return u, nil
}

// ExtractBearerToken parses "Bearer <token>". The scheme is case-insensitive.
func ExtractBearerToken(header string) (string, bool) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	return raw, true
}
