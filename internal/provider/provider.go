// Package provider talks to the AI backends that do the actual generation.
package provider

import (
	"context"
	"fmt"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider generates text, images and audio.
type Provider interface {
	Chat(ctx context.Context, model string, messages []Message) (string, error)
	// Image returns a URL (or data URL) of the generated image.
	Image(ctx context.Context, model, prompt string) (string, error)
	// Speech returns encoded audio bytes (mp3).
	Speech(ctx context.Context, model, text string) ([]byte, error)
}

// APIError is a non-2xx response from the upstream API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Message)
}
