package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/botdesk/botdesk/internal/api/middleware"
	"github.com/botdesk/botdesk/internal/api/response"
	"github.com/botdesk/botdesk/internal/events"
	"github.com/botdesk/botdesk/internal/usage"
)

// UsageLister lists a user's ledger records.
type UsageLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]usage.Record, error)
}

type usageRecordResponse struct {
	BotID      string `json:"botId"`
	Used       int    `json:"used"`
	Limit      int    `json:"limit"`
	LastUsedAt string `json:"lastUsedAt"`
}

type usageResponse struct {
	IsPremium bool                  `json:"isPremium"`
	Limit     int                   `json:"limit"`
	Records   []usageRecordResponse `json:"records"`
}

// AccountHandler serves the caller's own account. Routes are mounted behind
// middleware.Authenticate.
type AccountHandler struct {
	accounts  AccountService
	usage     UsageLister
	freeLimit int
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts AccountService, usage UsageLister, freeLimit int) *AccountHandler {
	return &AccountHandler{accounts: accounts, usage: usage, freeLimit: freeLimit}
}

// Me handles GET /me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	u := middleware.GetUser(r.Context())
	response.Success(w, http.StatusOK, newUserResponse(u), middleware.GetRequestID(r.Context()))
}

// Usage handles GET /me/usage.
func (h *AccountHandler) Usage(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	u := middleware.GetUser(r.Context())

	records, err := h.usage.ListByUser(r.Context(), u.ID)
	if err != nil {
		slog.Error("failed to list usage", "error", err, "userId", u.ID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load usage", requestID)
		return
	}

	items := make([]usageRecordResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, usageRecordResponse{
			BotID:      rec.BotID,
			Used:       rec.Count,
			Limit:      h.freeLimit,
			LastUsedAt: formatTime(rec.LastUsedAt),
		})
	}

	response.Success(w, http.StatusOK, usageResponse{
		IsPremium: u.IsPremium,
		Limit:     h.freeLimit,
		Records:   items,
	}, requestID)
}

// Upgrade handles POST /me/upgrade, the self-service premium switch.
func (h *AccountHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	u := middleware.GetUser(r.Context())

	if u.IsPremium {
		response.Success(w, http.StatusOK, newUserResponse(u), requestID)
		return
	}

	updated, err := h.accounts.SetPremium(r.Context(), u.ID, u.ID, true, events.SourceSelf)
	if err != nil {
		slog.Error("failed to upgrade account", "error", err, "userId", u.ID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to upgrade account", requestID)
		return
	}

	response.Success(w, http.StatusOK, newUserResponse(updated), requestID)
}
