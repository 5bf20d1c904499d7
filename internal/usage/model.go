package usage

import (
	"time"

	"github.com/google/uuid"
)

// Record is the per-(user, bot) free-tier counter.
type Record struct {
	UserID     uuid.UUID
	BotID      string
	Count      int
	LastUsedAt time.Time
}
