// Package entitlement decides whether a resolved user may perform a capability.
package entitlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/botdesk/botdesk/internal/user"
)

// DefaultFreeLimit is the number of free metered actions per (user, bot).
const DefaultFreeLimit = 5

// ErrPremiumRequired is returned when the capability needs a premium account.
var ErrPremiumRequired = errors.New("premium subscription required")

// ErrQuotaExceeded matches any *QuotaExceededError via errors.Is.
var ErrQuotaExceeded = errors.New("free quota exceeded")

// ErrAdminRequired is returned for admin capabilities requested by non-admins.
var ErrAdminRequired = errors.New("admin privileges required")

// QuotaExceededError reports the counts the client needs to render "used/limit".
type QuotaExceededError struct {
	BotID string
	Limit int
	Used  int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("free quota exceeded for bot %q: %d/%d used", e.BotID, e.Used, e.Limit)
}

// Is lets errors.Is(err, ErrQuotaExceeded) match.
func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// UsageCounter is the read side of the usage ledger.
type UsageCounter interface {
	GetCount(ctx context.Context, userID uuid.UUID, botID string) (int, error)
}

// Policy evaluates capabilities against live account state. It never mutates anything.
type Policy struct {
	usage     UsageCounter
	freeLimit int
}

// NewPolicy creates a Policy with the given free-tier limit.
func NewPolicy(usage UsageCounter, freeLimit int) *Policy {
	return &Policy{usage: usage, freeLimit: freeLimit}
}

// FreeLimit returns the configured free-tier limit.
func (p *Policy) FreeLimit() int {
	return p.freeLimit
}

// Authorize returns nil when u may perform c now. Storage errors are returned
// wrapped and must be treated as a denial by the caller.
func (p *Policy) Authorize(ctx context.Context, u *user.User, c Capability) error {
	if u == nil {
		return errors.New("authorize: nil user")
	}

	switch c.Kind {
	case KindPremiumOnly:
		if !u.IsPremium {
			return ErrPremiumRequired
		}
		return nil

	case KindMetered:
		if u.IsPremium {
			return nil
		}
		used, err := p.usage.GetCount(ctx, u.ID, c.BotID)
		if err != nil {
			return fmt.Errorf("reading usage for %s: %w", c, err)
		}
		if used >= p.freeLimit {
			return &QuotaExceededError{BotID: c.BotID, Limit: p.freeLimit, Used: used}
		}
		return nil

	case KindAdmin:
		if !u.IsAdmin {
			return ErrAdminRequired
		}
		return nil

	default:
		return fmt.Errorf("authorize: unknown capability %s", c)
	}
}
