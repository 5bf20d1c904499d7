package events

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys published on the account exchange.
const (
	KeyUserRegistered = "user.registered"
	KeyPremiumChanged = "user.premium_changed"
)

// Sources of a premium change.
const (
	SourceSelf  = "self"
	SourceAdmin = "admin"
)

// UserRegistered is published after an account is created.
type UserRegistered struct {
	UserID     uuid.UUID `json:"userId"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Provider   string    `json:"provider"`
	OccurredAt time.Time `json:"occurredAt"`
}

// PremiumChanged is published whenever isPremium is written.
type PremiumChanged struct {
	UserID     uuid.UUID `json:"userId"`
	Email      string    `json:"email"`
	IsPremium  bool      `json:"isPremium"`
	Source     string    `json:"source"`
	ActorID    uuid.UUID `json:"actorId"`
	OccurredAt time.Time `json:"occurredAt"`
}
