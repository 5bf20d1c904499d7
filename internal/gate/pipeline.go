// Package gate composes identity resolution, entitlement and usage
// accounting around a capability-gated operation.
//
// Order per call: resolve the bearer token to the live user, authorize the
// capability, run the operation, and only when the operation succeeded and the
// capability is metered for a free user, commit one use to the ledger.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/botdesk/botdesk/internal/auth"
	"github.com/botdesk/botdesk/internal/entitlement"
	"github.com/botdesk/botdesk/internal/metrics"
	"github.com/botdesk/botdesk/internal/usage"
	"github.com/botdesk/botdesk/internal/user"
)

// Outcome is the policy result of a gated call.
type Outcome int

const (
	Allowed Outcome = iota + 1
	DenyUnauthenticated
	DenyPremiumRequired
	DenyQuotaExceeded
	DenyAdminRequired
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case DenyUnauthenticated:
		return "deny_unauthenticated"
	case DenyPremiumRequired:
		return "deny_premium_required"
	case DenyQuotaExceeded:
		return "deny_quota_exceeded"
	case DenyAdminRequired:
		return "deny_admin_required"
	default:
		return "unknown"
	}
}

// Decision is what the route layer translates into a response.
// BotID, Limit and Used are set for DenyQuotaExceeded.
type Decision struct {
	Outcome Outcome
	User    *user.User
	BotID   string
	Limit   int
	Used    int
}

// Operation is the gated work, e.g. a call to an AI provider.
type Operation func(ctx context.Context, u *user.User) error

// OperationError wraps a failure of the gated operation itself, as opposed
// to a storage failure inside the gate.
type OperationError struct {
	Err error
}

func (e *OperationError) Error() string { return "gated operation failed: " + e.Err.Error() }
func (e *OperationError) Unwrap() error { return e.Err }

// IdentityResolver resolves an Authorization header to a live user.
type IdentityResolver interface {
	Resolve(ctx context.Context, header string) (*user.User, error)
}

// Authorizer decides a capability for a resolved user.
type Authorizer interface {
	Authorize(ctx context.Context, u *user.User, c entitlement.Capability) error
	FreeLimit() int
}

// UsageRecorder is the write side of the usage ledger.
type UsageRecorder interface {
	RecordUseWithin(ctx context.Context, userID uuid.UUID, botID string, limit int) (*usage.Record, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTimeout bounds every operation run by the pipeline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// Pipeline is safe for concurrent use; it holds no per-request state and no
// locks, all serialization happens in the ledger's atomic increment.
type Pipeline struct {
	resolver IdentityResolver
	policy   Authorizer
	ledger   UsageRecorder
	timeout  time.Duration
}

// New creates a Pipeline.
func New(resolver IdentityResolver, policy Authorizer, ledger UsageRecorder, opts ...Option) *Pipeline {
	p := &Pipeline{resolver: resolver, policy: policy, ledger: ledger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Authenticate runs only the identity step.
func (p *Pipeline) Authenticate(ctx context.Context, header string) (Decision, error) {
	u, err := p.resolver.Resolve(ctx, header)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			return Decision{Outcome: DenyUnauthenticated}, nil
		}
		return Decision{}, fmt.Errorf("resolving identity: %w", err)
	}
	return Decision{Outcome: Allowed, User: u}, nil
}

// Check runs identity and entitlement without side effects.
func (p *Pipeline) Check(ctx context.Context, header string, c entitlement.Capability) (Decision, error) {
	d, err := p.Authenticate(ctx, header)
	if err != nil || d.Outcome != Allowed {
		return d, err
	}
	return p.authorize(ctx, d.User, c)
}

func (p *Pipeline) authorize(ctx context.Context, u *user.User, c entitlement.Capability) (Decision, error) {
	err := p.policy.Authorize(ctx, u, c)

	var quotaErr *entitlement.QuotaExceededError
	switch {
	case err == nil:
		return Decision{Outcome: Allowed, User: u}, nil
	case errors.Is(err, entitlement.ErrPremiumRequired):
		return Decision{Outcome: DenyPremiumRequired, User: u}, nil
	case errors.As(err, &quotaErr):
		return Decision{Outcome: DenyQuotaExceeded, User: u, BotID: quotaErr.BotID, Limit: quotaErr.Limit, Used: quotaErr.Used}, nil
	case errors.Is(err, entitlement.ErrAdminRequired):
		return Decision{Outcome: DenyAdminRequired, User: u}, nil
	default:
		return Decision{}, fmt.Errorf("authorizing %s: %w", c, err)
	}
}

// Run gates op behind capability c.
//
// A non-nil error means the request failed closed: either a storage failure
// (plain wrapped error) or a failure of op (*OperationError). Denials are
// reported through Decision with a nil error and op is never called for them.
func (p *Pipeline) Run(ctx context.Context, header string, c entitlement.Capability, op Operation) (Decision, error) {
	d, err := p.Check(ctx, header, c)
	if err != nil {
		metrics.GateDecisions.WithLabelValues(c.Kind.String(), "error").Inc()
		return Decision{}, err
	}
	if d.Outcome != Allowed {
		p.observe(c, d)
		return d, nil
	}

	if err := p.runOperation(ctx, d.User, op); err != nil {
		metrics.GateDecisions.WithLabelValues(c.Kind.String(), "operation_failed").Inc()
		return d, err
	}

	if c.Kind != entitlement.KindMetered || d.User.IsPremium {
		p.observe(c, d)
		return d, nil
	}

	limit := p.policy.FreeLimit()
	rec, err := p.ledger.RecordUseWithin(ctx, d.User.ID, c.BotID, limit)
	if err != nil {
		if errors.Is(err, usage.ErrLimitReached) {
			// A concurrent request for the same pair committed the last free use first.
			d = Decision{Outcome: DenyQuotaExceeded, User: d.User, BotID: c.BotID, Limit: limit, Used: limit}
			p.observe(c, d)
			return d, nil
		}
		metrics.GateDecisions.WithLabelValues(c.Kind.String(), "error").Inc()
		return Decision{}, fmt.Errorf("recording usage: %w", err)
	}

	metrics.UsageRecorded.WithLabelValues(c.BotID).Inc()
	d.BotID, d.Limit, d.Used = c.BotID, limit, rec.Count
	p.observe(c, d)
	return d, nil
}

// runOperation treats a cancelled or expired context as a failure even when op returned nil.
func (p *Pipeline) runOperation(ctx context.Context, u *user.User, op Operation) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := op(ctx, u); err != nil {
		return &OperationError{Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &OperationError{Err: err}
	}
	return nil
}

func (p *Pipeline) observe(c entitlement.Capability, d Decision) {
	metrics.GateDecisions.WithLabelValues(c.Kind.String(), d.Outcome.String()).Inc()
	if d.Outcome == Allowed {
		return
	}

	attrs := []any{"capability", c.String(), "outcome", d.Outcome.String()}
	if d.User != nil {
		attrs = append(attrs, "userId", d.User.ID)
	}
	if d.Outcome == DenyQuotaExceeded {
		attrs = append(attrs, "used", d.Used, "limit", d.Limit)
	}
	slog.Info("gate denied request", attrs...)
}
