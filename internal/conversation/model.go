package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a chat thread between one user and one bot.
type Conversation struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	BotID     string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a stored turn of a conversation.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           string
	Content        string
	CreatedAt      time.Time
}
