// Package metrics holds the service's Prometheus collectors. Collectors are
// package-level so any layer can record without plumbing; main registers
// them once with Register.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// GateDecisions counts gated calls by capability kind and outcome.
	GateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "botdesk", Name: "gate_decisions_total", Help: "Gated calls by capability kind and outcome."},
		[]string{"capability", "outcome"},
	)
	// UsageRecorded counts free-tier uses committed to the ledger, per bot.
	UsageRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "botdesk", Name: "usage_recorded_total", Help: "Free-tier uses committed to the ledger."},
		[]string{"bot"},
	)
	// AuthAttempts counts sign-up and sign-in attempts by method and outcome
	// (success, rejected, error).
	AuthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "botdesk", Name: "auth_attempts_total", Help: "Authentication attempts by method and outcome."},
		[]string{"method", "outcome"},
	)
	// ProviderCalls counts AI backend calls by operation and outcome.
	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "botdesk", Name: "provider_calls_total", Help: "AI provider calls by operation and outcome."},
		[]string{"op", "outcome"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "botdesk", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "botdesk", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(GateDecisions, UsageRecorded, AuthAttempts, ProviderCalls, RateLimitAllowed, RateLimitRejected)
}
