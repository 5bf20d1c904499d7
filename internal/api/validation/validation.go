package validation

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores bytes beyond 72
	maxNameLength     = 255
	maxPromptLength   = 32000
)

// SignUpRequest mirrors the fields needed for sign-up validation.
type SignUpRequest struct {
	Email    string
	Password string
	Name     string
}

// ValidateSignUp validates an email sign-up. Returns an empty slice when valid.
func ValidateSignUp(req SignUpRequest) []FieldError {
	var errs []FieldError

	errs = append(errs, validateEmail(req.Email)...)

	switch {
	case len(req.Password) < minPasswordLength:
		errs = append(errs, FieldError{Field: "password", Message: "password must be at least 8 characters"})
	case len(req.Password) > maxPasswordLength:
		errs = append(errs, FieldError{Field: "password", Message: "password must be at most 72 bytes"})
	}

	if utf8.RuneCountInString(strings.TrimSpace(req.Name)) > maxNameLength {
		errs = append(errs, FieldError{Field: "name", Message: "name must be at most 255 characters"})
	}

	return errs
}

// LoginRequest mirrors the fields needed for login validation.
type LoginRequest struct {
	Email    string
	Password string
}

// ValidateLogin only checks presence; credential errors are reported uniformly by the service.
func ValidateLogin(req LoginRequest) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(req.Email) == "" {
		errs = append(errs, FieldError{Field: "email", Message: "email is required"})
	}
	if req.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "password is required"})
	}
	return errs
}

func validateEmail(email string) []FieldError {
	email = strings.TrimSpace(email)
	if email == "" {
		return []FieldError{{Field: "email", Message: "email is required"}}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return []FieldError{{Field: "email", Message: "email must be a valid address"}}
	}
	return nil
}

// ValidatePrompt checks a chat message, image prompt or speech input.
func ValidatePrompt(field, text string) []FieldError {
	switch {
	case strings.TrimSpace(text) == "":
		return []FieldError{{Field: field, Message: field + " is required"}}
	case utf8.RuneCountInString(text) > maxPromptLength:
		return []FieldError{{Field: field, Message: field + " must be at most 32000 characters"}}
	}
	return nil
}
