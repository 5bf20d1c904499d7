package user

import (
	"time"

	"github.com/google/uuid"
)

// Sign-up providers recorded on a user.
const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
)

// User represents a row in the users table.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash *string // nil for Google-only accounts
	GoogleID     *string // nil until linked
	Name         string
	AvatarURL    string
	Provider     string
	IsPremium    bool
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether the account can sign in with email and password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Patch lists the mutable fields of a User. Nil fields are left untouched.
// Email is deliberately absent: it never changes after creation.
type Patch struct {
	Name         *string
	AvatarURL    *string
	PasswordHash *string
	GoogleID     *string
	IsPremium    *bool
	IsAdmin      *bool
}

// Apply copies the non-nil fields of p onto u.
func (p Patch) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
	if p.PasswordHash != nil {
		h := *p.PasswordHash
		u.PasswordHash = &h
	}
	if p.GoogleID != nil {
		g := *p.GoogleID
		u.GoogleID = &g
	}
	if p.IsPremium != nil {
		u.IsPremium = *p.IsPremium
	}
	if p.IsAdmin != nil {
		u.IsAdmin = *p.IsAdmin
	}
}
