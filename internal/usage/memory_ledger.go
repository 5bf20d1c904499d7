package usage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type key struct {
	userID uuid.UUID
	botID  string
}

// MemoryLedger is an in-process Ledger. Its mutex plays the role of the
// database's row lock, so each increment is atomic.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[key]Record
	now     Clock
}

// NewMemoryLedger returns an empty MemoryLedger. A nil clock defaults to time.Now.
func NewMemoryLedger(clock Clock) *MemoryLedger {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryLedger{records: make(map[key]Record), now: clock}
}

func (l *MemoryLedger) RecordUse(_ context.Context, userID uuid.UUID, botID string) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.incrementLocked(userID, botID), nil
}

func (l *MemoryLedger) RecordUseWithin(_ context.Context, userID uuid.UUID, botID string, limit int) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.records[key{userID, botID}].Count >= limit {
		return nil, ErrLimitReached
	}
	return l.incrementLocked(userID, botID), nil
}

func (l *MemoryLedger) incrementLocked(userID uuid.UUID, botID string) *Record {
	k := key{userID, botID}
	rec := l.records[k]
	rec.UserID = userID
	rec.BotID = botID
	rec.Count++
	rec.LastUsedAt = l.now().UTC()
	l.records[k] = rec
	return &rec
}

func (l *MemoryLedger) GetCount(_ context.Context, userID uuid.UUID, botID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records[key{userID, botID}].Count, nil
}

func (l *MemoryLedger) ListByUser(_ context.Context, userID uuid.UUID) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records := []Record{}
	for k, rec := range l.records {
		if k.userID == userID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].BotID < records[j].BotID })
	return records, nil
}

func (l *MemoryLedger) Reset(_ context.Context, userID uuid.UUID, botID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{userID, botID}
	if rec, ok := l.records[k]; ok {
		rec.Count = 0
		l.records[k] = rec
	}
	return nil
}
