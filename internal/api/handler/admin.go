package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/botdesk/botdesk/internal/api/middleware"
	"github.com/botdesk/botdesk/internal/api/response"
	"github.com/botdesk/botdesk/internal/events"
	"github.com/botdesk/botdesk/internal/user"
)

// UserLister lists all accounts.
type UserLister interface {
	List(ctx context.Context) ([]user.User, error)
}

// UsageResetter zeroes a ledger counter.
type UsageResetter interface {
	Reset(ctx context.Context, userID uuid.UUID, botID string) error
}

type setPremiumRequest struct {
	IsPremium *bool `json:"isPremium"`
}

// AdminHandler serves /admin routes. Routes are mounted behind
// middleware.Authenticate and middleware.RequireAdmin.
type AdminHandler struct {
	users    UserLister
	accounts AccountService
	usage    UsageResetter
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(users UserLister, accounts AccountService, usage UsageResetter) *AdminHandler {
	return &AdminHandler{users: users, accounts: accounts, usage: usage}
}

// ListUsers handles GET /admin/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	users, err := h.users.List(r.Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list users", requestID)
		return
	}

	items := make([]userResponse, 0, len(users))
	for i := range users {
		items = append(items, newUserResponse(&users[i]))
	}
	response.List(w, items, len(items), requestID)
}

// SetPremium handles PUT /admin/users/{id}/premium.
func (h *AdminHandler) SetPremium(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	actor := middleware.GetUser(r.Context())

	id, ok := parseIDParam(w, r, requestID)
	if !ok {
		return
	}

	var req setPremiumRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}
	if req.IsPremium == nil {
		response.Err(w, http.StatusBadRequest, "VALIDATION_ERROR", "isPremium is required", requestID)
		return
	}

	u, err := h.accounts.SetPremium(r.Context(), actor.ID, id, *req.IsPremium, events.SourceAdmin)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "User not found", requestID)
			return
		}
		slog.Error("failed to set premium", "error", err, "id", id)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update user", requestID)
		return
	}

	response.Success(w, http.StatusOK, newUserResponse(u), requestID)
}

// ResetUsage handles DELETE /admin/users/{id}/usage/{botID}.
func (h *AdminHandler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	actor := middleware.GetUser(r.Context())

	id, ok := parseIDParam(w, r, requestID)
	if !ok {
		return
	}
	botID := chi.URLParam(r, "botID")

	if err := h.usage.Reset(r.Context(), id, botID); err != nil {
		slog.Error("failed to reset usage", "error", err, "id", id, "botId", botID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to reset usage", requestID)
		return
	}

	slog.Info("usage reset", "userId", id, "botId", botID, "actorId", actor.ID)
	response.NoContent(w)
}

func parseIDParam(w http.ResponseWriter, r *http.Request, requestID string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_ID", "id must be a valid UUID", requestID)
		return uuid.Nil, false
	}
	return id, true
}
