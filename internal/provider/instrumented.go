package provider

import (
	"context"
	"errors"

	"github.com/botdesk/botdesk/internal/metrics"
)

// Instrumented wraps a Provider and counts every call in
// botdesk_provider_calls_total.
type Instrumented struct {
	next Provider
}

// WithMetrics returns p wrapped with call counters.
func WithMetrics(p Provider) *Instrumented {
	return &Instrumented{next: p}
}

func (i *Instrumented) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	reply, err := i.next.Chat(ctx, model, messages)
	observe("chat", err)
	return reply, err
}

func (i *Instrumented) Image(ctx context.Context, model, prompt string) (string, error) {
	url, err := i.next.Image(ctx, model, prompt)
	observe("image", err)
	return url, err
}

func (i *Instrumented) Speech(ctx context.Context, model, text string) ([]byte, error) {
	audio, err := i.next.Speech(ctx, model, text)
	observe("speech", err)
	return audio, err
}

// Outcome labels for provider calls.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
)

// CallOutcome classifies err for the provider_calls_total outcome label.
func CallOutcome(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.As(err, &apiErr):
		return OutcomeRejected
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}

func observe(op string, err error) {
	metrics.ProviderCalls.WithLabelValues(op, CallOutcome(err)).Inc()
}
