package conversation

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrConversationNotFound is returned when a conversation does not exist or
// belongs to another user.
var ErrConversationNotFound = errors.New("conversation not found")

// Repository stores conversations and their messages. Every read and delete
// is scoped to the owning user.
type Repository interface {
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*Conversation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Conversation, error)
	AppendMessages(ctx context.Context, conversationID uuid.UUID, msgs []Message) error
	ListMessages(ctx context.Context, userID, conversationID uuid.UUID) ([]Message, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}
