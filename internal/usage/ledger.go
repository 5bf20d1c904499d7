// Package usage is the durable ledger of metered free-tier consumption.
//
// Every increment is a single atomic operation at the storage layer; callers
// never read a count and write it back.
package usage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLimitReached is returned by RecordUseWithin when the counter is already at the limit.
var ErrLimitReached = errors.New("usage limit reached")

// Clock returns the time stamped on a record.
type Clock func() time.Time

// Ledger records and reports metered usage.
type Ledger interface {
	// RecordUse creates the record with count 1 or increments it by exactly one.
	RecordUse(ctx context.Context, userID uuid.UUID, botID string) (*Record, error)
	// RecordUseWithin is RecordUse conditional on the current count being below limit.
	RecordUseWithin(ctx context.Context, userID uuid.UUID, botID string, limit int) (*Record, error)
	// GetCount returns the committed count, 0 when no record exists.
	GetCount(ctx context.Context, userID uuid.UUID, botID string) (int, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Record, error)
	// Reset zeroes a counter. Administrative use only.
	Reset(ctx context.Context, userID uuid.UUID, botID string) error
}
