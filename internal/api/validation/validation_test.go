package validation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/botdesk/botdesk/internal/api/validation"
)

func fields(errs []validation.FieldError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestValidateSignUp(t *testing.T) {
	tests := []struct {
		name string
		req  validation.SignUpRequest
		want []string
	}{
		{"valid", validation.SignUpRequest{Email: "a@x.io", Password: "password123", Name: "A"}, []string{}},
		{"name optional", validation.SignUpRequest{Email: "a@x.io", Password: "password123"}, []string{}},
		{"missing email", validation.SignUpRequest{Password: "password123"}, []string{"email"}},
		{"bad email", validation.SignUpRequest{Email: "not-an-email", Password: "password123"}, []string{"email"}},
		{"display name form rejected", validation.SignUpRequest{Email: "A <a@x.io>", Password: "password123"}, []string{"email"}},
		{"short password", validation.SignUpRequest{Email: "a@x.io", Password: "short"}, []string{"password"}},
		{"long password", validation.SignUpRequest{Email: "a@x.io", Password: strings.Repeat("p", 73)}, []string{"password"}},
		{"long name", validation.SignUpRequest{Email: "a@x.io", Password: "password123", Name: strings.Repeat("n", 256)}, []string{"name"}},
		{"everything wrong", validation.SignUpRequest{Password: "x"}, []string{"email", "password"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fields(validation.ValidateSignUp(tt.req)))
		})
	}
}

func TestValidateLogin(t *testing.T) {
	assert.Empty(t, validation.ValidateLogin(validation.LoginRequest{Email: "a@x.io", Password: "x"}))
	assert.Equal(t, []string{"email", "password"}, fields(validation.ValidateLogin(validation.LoginRequest{})))
}

func TestValidatePrompt(t *testing.T) {
	assert.Empty(t, validation.ValidatePrompt("message", "hello"))
	assert.Equal(t, []string{"message"}, fields(validation.ValidatePrompt("message", "   ")))
	assert.Equal(t, []string{"prompt"}, fields(validation.ValidatePrompt("prompt", strings.Repeat("x", 32001))))
}
