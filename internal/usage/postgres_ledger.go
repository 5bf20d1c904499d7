package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger implements Ledger on the usage_records table.
type PostgresLedger struct {
	pool *pgxpool.Pool
	now  Clock
}

// NewPostgresLedger creates a Ledger backed by the given pool. A nil clock defaults to time.Now.
func NewPostgresLedger(pool *pgxpool.Pool, clock Clock) Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &PostgresLedger{pool: pool, now: clock}
}

// upsertIncrement is the single-statement primitive behind both RecordUse
// variants. The conflict branch is guarded by $4; a NULL bound disables it.
const upsertIncrement = `
	INSERT INTO usage_records (user_id, bot_id, count, last_used_at)
	VALUES ($1, $2, 1, $3)
	ON CONFLICT (user_id, bot_id) DO UPDATE
		SET count = usage_records.count + 1,
		    last_used_at = EXCLUDED.last_used_at
		WHERE $4::integer IS NULL OR usage_records.count < $4::integer
	RETURNING count, last_used_at`

// RecordUse increments the (userID, botID) counter unconditionally.
func (l *PostgresLedger) RecordUse(ctx context.Context, userID uuid.UUID, botID string) (*Record, error) {
	return l.increment(ctx, userID, botID, nil)
}

// RecordUseWithin increments the counter only while it is below limit.
func (l *PostgresLedger) RecordUseWithin(ctx context.Context, userID uuid.UUID, botID string, limit int) (*Record, error) {
	if limit <= 0 {
		return nil, ErrLimitReached
	}
	return l.increment(ctx, userID, botID, &limit)
}

func (l *PostgresLedger) increment(ctx context.Context, userID uuid.UUID, botID string, limit *int) (*Record, error) {
	rec := Record{UserID: userID, BotID: botID}
	err := l.pool.QueryRow(ctx, upsertIncrement, userID, botID, l.now().UTC(), limit).
		Scan(&rec.Count, &rec.LastUsedAt)
	if err != nil {
		// The guarded DO UPDATE returns no row when the limit is reached.
		if errors.Is(err, pgx.ErrNoRows) && limit != nil {
			return nil, ErrLimitReached
		}
		return nil, fmt.Errorf("incrementing usage: %w", err)
	}
	return &rec, nil
}

// GetCount returns the current count for the pair, or 0 when no record exists.
func (l *PostgresLedger) GetCount(ctx context.Context, userID uuid.UUID, botID string) (int, error) {
	var count int
	err := l.pool.QueryRow(ctx,
		`SELECT count FROM usage_records WHERE user_id = $1 AND bot_id = $2`,
		userID, botID,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading usage count: %w", err)
	}
	return count, nil
}

// ListByUser returns all records owned by userID ordered by bot id.
func (l *PostgresLedger) ListByUser(ctx context.Context, userID uuid.UUID) ([]Record, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT user_id, bot_id, count, last_used_at
		FROM usage_records
		WHERE user_id = $1
		ORDER BY bot_id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing usage: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.UserID, &rec.BotID, &rec.Count, &rec.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage rows: %w", err)
	}
	return records, nil
}

// Reset sets the counter back to zero. Missing records are left absent.
func (l *PostgresLedger) Reset(ctx context.Context, userID uuid.UUID, botID string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE usage_records SET count = 0 WHERE user_id = $1 AND bot_id = $2`,
		userID, botID,
	)
	if err != nil {
		return fmt.Errorf("resetting usage: %w", err)
	}
	return nil
}
