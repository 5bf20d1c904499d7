package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/botdesk/botdesk/internal/api/middleware"
	"github.com/botdesk/botdesk/internal/api/response"
	"github.com/botdesk/botdesk/internal/conversation"
)

type conversationResponse struct {
	ID        string `json:"id"`
	BotID     string `json:"botId"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type messageResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// ConversationHandler serves the caller's stored conversations.
type ConversationHandler struct {
	convs conversation.Repository
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(convs conversation.Repository) *ConversationHandler {
	return &ConversationHandler{convs: convs}
}

// List handles GET /conversations.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	u := middleware.GetUser(r.Context())

	convs, err := h.convs.ListByUser(r.Context(), u.ID)
	if err != nil {
		slog.Error("failed to list conversations", "error", err, "userId", u.ID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list conversations", requestID)
		return
	}

	items := make([]conversationResponse, 0, len(convs))
	for _, c := range convs {
		items = append(items, conversationResponse{
			ID:        c.ID.String(),
			BotID:     c.BotID,
			Title:     c.Title,
			CreatedAt: formatTime(c.CreatedAt),
			UpdatedAt: formatTime(c.UpdatedAt),
		})
	}
	response.List(w, items, len(items), requestID)
}

// Messages handles GET /conversations/{id}/messages.
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	u := middleware.GetUser(r.Context())

	id, ok := parseIDParam(w, r, requestID)
	if !ok {
		return
	}

	msgs, err := h.convs.ListMessages(r.Context(), u.ID, id)
	if err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found", requestID)
			return
		}
		slog.Error("failed to list messages", "error", err, "id", id)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list messages", requestID)
		return
	}

	items := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, messageResponse{
			ID:        m.ID.String(),
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: formatTime(m.CreatedAt),
		})
	}
	response.List(w, items, len(items), requestID)
}

// Delete handles DELETE /conversations/{id}.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	u := middleware.GetUser(r.Context())

	id, ok := parseIDParam(w, r, requestID)
	if !ok {
		return
	}

	if err := h.convs.Delete(r.Context(), u.ID, id); err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found", requestID)
			return
		}
		slog.Error("failed to delete conversation", "error", err, "id", id)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete conversation", requestID)
		return
	}
	response.NoContent(w)
}
