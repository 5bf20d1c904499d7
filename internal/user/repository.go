package user

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUserNotFound is returned when a user record is not found.
var ErrUserNotFound = errors.New("user not found")

// ErrDuplicateEmail is returned when the email is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrDuplicateGoogleID is returned when the Google account is already linked to another user.
var ErrDuplicateGoogleID = errors.New("google account already linked")

// Repository provides operations on the users table.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByGoogleID(ctx context.Context, googleID string) (*User, error)
	Update(ctx context.Context, id uuid.UUID, patch Patch) (*User, error)
	List(ctx context.Context) ([]User, error)
	CountAll(ctx context.Context) (int, error)
}
