package user

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository used with STORAGE_DRIVER=memory and in tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[uuid.UUID]*User)}
}

func clone(u *User) *User {
	c := *u
	if u.PasswordHash != nil {
		h := *u.PasswordHash
		c.PasswordHash = &h
	}
	if u.GoogleID != nil {
		g := *u.GoogleID
		c.GoogleID = &g
	}
	return &c
}

// conflictLocked checks unique columns; r.mu must be held.
func (r *MemoryRepository) conflictLocked(self uuid.UUID, email string, googleID *string) error {
	for id, u := range r.users {
		if id == self {
			continue
		}
		if u.Email == email {
			return ErrDuplicateEmail
		}
		if googleID != nil && u.GoogleID != nil && *u.GoogleID == *googleID {
			return ErrDuplicateGoogleID
		}
	}
	return nil
}

func (r *MemoryRepository) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.conflictLocked(uuid.Nil, u.Email, u.GoogleID); err != nil {
		return err
	}

	now := time.Now().UTC()
	u.ID = uuid.New()
	u.CreatedAt = now
	u.UpdatedAt = now
	r.users[u.ID] = clone(u)
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return clone(u), nil
}

func (r *MemoryRepository) find(match func(*User) bool) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if match(u) {
			return clone(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	return r.find(func(u *User) bool { return u.Email == email })
}

func (r *MemoryRepository) FindByGoogleID(_ context.Context, googleID string) (*User, error) {
	return r.find(func(u *User) bool { return u.GoogleID != nil && *u.GoogleID == googleID })
}

func (r *MemoryRepository) Update(_ context.Context, id uuid.UUID, p Patch) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	if p.GoogleID != nil {
		if err := r.conflictLocked(id, u.Email, p.GoogleID); err != nil {
			return nil, err
		}
	}

	updated := clone(u)
	p.Apply(updated)
	updated.UpdatedAt = time.Now().UTC()
	r.users[id] = updated
	return clone(updated), nil
}

func (r *MemoryRepository) List(_ context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, *clone(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (r *MemoryRepository) CountAll(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users), nil
}
