package handler

import (
	"time"

	"github.com/botdesk/botdesk/internal/user"
)

const timeFormat = "2006-01-02T15:04:05Z"

type userResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	AvatarURL    string `json:"avatarUrl,omitempty"`
	Provider     string `json:"provider"`
	GoogleLinked bool   `json:"googleLinked"`
	IsPremium    bool   `json:"isPremium"`
	IsAdmin      bool   `json:"isAdmin"`
	CreatedAt    string `json:"createdAt"`
}

func newUserResponse(u *user.User) userResponse {
	return userResponse{
		ID:           u.ID.String(),
		Email:        u.Email,
		Name:         u.Name,
		AvatarURL:    u.AvatarURL,
		Provider:     u.Provider,
		GoogleLinked: u.GoogleID != nil,
		IsPremium:    u.IsPremium,
		IsAdmin:      u.IsAdmin,
		CreatedAt:    formatTime(u.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}
