// Package token issues and verifies the signed bearer tokens handed out after
// a successful sign-in.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers malformed, mis-signed and expired tokens alike.
var ErrInvalidToken = errors.New("invalid token")

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// Claims is the payload carried by a bearer token. Entitlement fields are
// intentionally absent; they are always read from storage.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Codec signs and verifies HS256 tokens with a process-wide secret.
type Codec struct {
	secret []byte
	issuer string
	now    Clock
}

// NewCodec creates a Codec. A nil clock defaults to time.Now.
func NewCodec(secret, issuer string, clock Clock) *Codec {
	if clock == nil {
		clock = time.Now
	}
	return &Codec{secret: []byte(secret), issuer: issuer, now: clock}
}

// Issue signs claims with an expiry ttl from now. Email is mandatory.
func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, error) {
	if claims.Email == "" {
		return "", errors.New("token claims require an email")
	}
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}

	now := c.now()
	claims.Issuer = c.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses raw and returns its claims, or ErrInvalidToken.
func (c *Codec) Verify(raw string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	var claims Claims
	t, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !t.Valid || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
