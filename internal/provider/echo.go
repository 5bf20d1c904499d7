package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Echo is a deterministic Provider for local development. It never fails
// unless the context is done.
type Echo struct{}

func (Echo) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			last = messages[i].Content
			break
		}
	}
	return fmt.Sprintf("[%s] %s", model, last), nil
}

func (Echo) Image(ctx context.Context, model, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "https://placehold.co/512x512?text=" + url.QueryEscape(model+": "+prompt), nil
}

func (Echo) Speech(ctx context.Context, _ string, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte(strings.ToUpper(text)), nil
}
