package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository used with STORAGE_DRIVER=memory and in tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	convs    map[uuid.UUID]Conversation
	messages map[uuid.UUID][]Message
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		convs:    make(map[uuid.UUID]Conversation),
		messages: make(map[uuid.UUID][]Message),
	}
}

func (r *MemoryRepository) Create(_ context.Context, c *Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	c.ID = uuid.New()
	c.CreatedAt = now
	c.UpdatedAt = now
	r.convs[c.ID] = *c
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, userID, id uuid.UUID) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.convs[id]
	if !ok || c.UserID != userID {
		return nil, ErrConversationNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	convs := []Conversation{}
	for _, c := range r.convs {
		if c.UserID == userID {
			convs = append(convs, c)
		}
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].UpdatedAt.After(convs[j].UpdatedAt) })
	return convs, nil
}

func (r *MemoryRepository) AppendMessages(_ context.Context, conversationID uuid.UUID, msgs []Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.convs[conversationID]
	if !ok {
		return ErrConversationNotFound
	}

	now := time.Now().UTC()
	for i := range msgs {
		msgs[i].ID = uuid.New()
		msgs[i].ConversationID = conversationID
		msgs[i].CreatedAt = now
	}
	r.messages[conversationID] = append(r.messages[conversationID], msgs...)
	c.UpdatedAt = now
	r.convs[conversationID] = c
	return nil
}

func (r *MemoryRepository) ListMessages(_ context.Context, userID, conversationID uuid.UUID) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.convs[conversationID]
	if !ok || c.UserID != userID {
		return nil, ErrConversationNotFound
	}
	return append([]Message{}, r.messages[conversationID]...), nil
}

func (r *MemoryRepository) Delete(_ context.Context, userID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.convs[id]
	if !ok || c.UserID != userID {
		return ErrConversationNotFound
	}
	delete(r.convs, id)
	delete(r.messages, id)
	return nil
}
