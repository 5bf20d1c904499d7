package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/botdesk/botdesk/internal/api/response"
	"github.com/botdesk/botdesk/internal/entitlement"
	"github.com/botdesk/botdesk/internal/gate"
	"github.com/botdesk/botdesk/internal/provider"
)

// Gate runs an operation behind a capability check.
type Gate interface {
	Run(ctx context.Context, header string, c entitlement.Capability, op gate.Operation) (gate.Decision, error)
}

type quotaDetails struct {
	BotID string `json:"botId"`
	Limit int    `json:"limit"`
	Used  int    `json:"used"`
}

// writeDenial maps a non-Allowed decision to its HTTP response.
func writeDenial(w http.ResponseWriter, d gate.Decision, requestID string) {
	switch d.Outcome {
	case gate.DenyUnauthenticated:
		response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "A valid bearer token is required", requestID)
	case gate.DenyPremiumRequired:
		response.Err(w, http.StatusPaymentRequired, "PREMIUM_REQUIRED", "This feature requires a premium subscription", requestID)
	case gate.DenyQuotaExceeded:
		response.ErrWithDetails(w, http.StatusTooManyRequests, "QUOTA_EXCEEDED", "Free usage limit reached for this bot",
			quotaDetails{BotID: d.BotID, Limit: d.Limit, Used: d.Used}, requestID)
	case gate.DenyAdminRequired:
		response.Err(w, http.StatusForbidden, "FORBIDDEN", "Admin access required", requestID)
	default:
		slog.Error("unexpected gate outcome", "outcome", d.Outcome.String(), "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", requestID)
	}
}

// writeGateError maps a failed gated call. Operation failures are upstream
// problems; everything else failed closed inside the gate.
func writeGateError(w http.ResponseWriter, err error, requestID string) {
	var opErr *gate.OperationError
	if !errors.As(err, &opErr) {
		slog.Error("gate failed", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Request could not be authorized", requestID)
		return
	}

	var apiErr *provider.APIError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		slog.Warn("provider timed out", "error", err, "requestId", requestID)
		response.Err(w, http.StatusGatewayTimeout, "PROVIDER_TIMEOUT", "The AI provider did not respond in time", requestID)
	case errors.Is(err, context.Canceled):
		slog.Info("request cancelled", "requestId", requestID)
		response.Err(w, http.StatusServiceUnavailable, "CANCELLED", "The request was cancelled", requestID)
	case errors.As(err, &apiErr):
		slog.Warn("provider rejected request", "status", apiErr.Status, "error", apiErr.Message, "requestId", requestID)
		response.Err(w, http.StatusBadGateway, "PROVIDER_ERROR", "The AI provider rejected the request", requestID)
	default:
		slog.Error("gated operation failed", "error", err, "requestId", requestID)
		response.Err(w, http.StatusBadGateway, "PROVIDER_ERROR", "The AI provider request failed", requestID)
	}
}

type usageView struct {
	BotID string `json:"botId"`
	Used  int    `json:"used"`
	Limit int    `json:"limit"`
}

// meteredUsage returns the usage view for a committed metered call, or nil.
func meteredUsage(d gate.Decision) *usageView {
	if d.BotID == "" || d.User == nil || d.User.IsPremium {
		return nil
	}
	return &usageView{BotID: d.BotID, Used: d.Used, Limit: d.Limit}
}
