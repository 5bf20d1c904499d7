package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/botdesk/botdesk/internal/api/middleware"
	"github.com/botdesk/botdesk/internal/api/response"
	"github.com/botdesk/botdesk/internal/api/validation"
	"github.com/botdesk/botdesk/internal/bot"
	"github.com/botdesk/botdesk/internal/conversation"
	"github.com/botdesk/botdesk/internal/gate"
	"github.com/botdesk/botdesk/internal/provider"
	"github.com/botdesk/botdesk/internal/user"
)

const maxTitleLength = 60

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

type chatResponse struct {
	ConversationID string     `json:"conversationId"`
	Reply          string     `json:"reply"`
	Usage          *usageView `json:"usage,omitempty"`
}

type imageRequest struct {
	Prompt string `json:"prompt"`
	BotID  string `json:"botId"`
}

type imageResponse struct {
	URL string `json:"url"`
}

type audioRequest struct {
	Text  string `json:"text"`
	BotID string `json:"botId"`
}

type audioResponse struct {
	ContentType string `json:"contentType"`
	Audio       string `json:"audio"`
}

// ChatHandler serves the capability-gated generation endpoints.
type ChatHandler struct {
	gate     Gate
	catalog  *bot.Catalog
	provider provider.Provider
	convs    conversation.Repository
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(g Gate, catalog *bot.Catalog, p provider.Provider, convs conversation.Repository) *ChatHandler {
	return &ChatHandler{gate: g, catalog: catalog, provider: p, convs: convs}
}

// Chat handles POST /bots/{botID}/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	b, err := h.catalog.Get(chi.URLParam(r, "botID"))
	if err != nil {
		response.Err(w, http.StatusNotFound, "NOT_FOUND", "Bot not found", requestID)
		return
	}
	if b.Kind != bot.KindChat {
		response.Err(w, http.StatusBadRequest, "INVALID_BOT", "Bot does not support chat", requestID)
		return
	}

	var req chatRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}
	if fieldErrors := validation.ValidatePrompt("message", req.Message); len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}
	var convID uuid.UUID
	if req.ConversationID != "" {
		convID, err = uuid.Parse(req.ConversationID)
		if err != nil {
			response.Err(w, http.StatusBadRequest, "INVALID_ID", "conversationId must be a valid UUID", requestID)
			return
		}
	}

	var turn *chatTurn
	d, err := h.gate.Run(r.Context(), r.Header.Get("Authorization"), b.Capability(),
		func(ctx context.Context, u *user.User) error {
			var err error
			turn, err = h.generate(ctx, u, b, convID, req.Message)
			return err
		})
	if err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found", requestID)
			return
		}
		writeGateError(w, err, requestID)
		return
	}
	if d.Outcome != gate.Allowed {
		writeDenial(w, d, requestID)
		return
	}

	conv, err := h.persist(r.Context(), d.User, b, turn)
	if err != nil {
		slog.Error("failed to save chat turn", "error", err, "userId", d.User.ID, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save conversation", requestID)
		return
	}

	response.Success(w, http.StatusOK, chatResponse{
		ConversationID: conv.ID.String(),
		Reply:          turn.reply,
		Usage:          meteredUsage(d),
	}, requestID)
}

// chatTurn is a generated but not yet stored exchange. conv is nil when the
// turn starts a new conversation.
type chatTurn struct {
	conv   *conversation.Conversation
	prompt string
	reply  string
}

// generate loads the history and asks the provider for a reply. It is the
// gated operation and performs no writes: a request that loses the final
// quota race must leave nothing behind.
func (h *ChatHandler) generate(ctx context.Context, u *user.User, b bot.Bot, convID uuid.UUID, text string) (*chatTurn, error) {
	turn := &chatTurn{prompt: text}
	var history []conversation.Message
	if convID != uuid.Nil {
		conv, err := h.convs.GetByID(ctx, u.ID, convID)
		if err != nil {
			return nil, err
		}
		if conv.BotID != b.ID {
			return nil, conversation.ErrConversationNotFound
		}
		history, err = h.convs.ListMessages(ctx, u.ID, conv.ID)
		if err != nil {
			return nil, err
		}
		turn.conv = conv
	}

	prompt := make([]provider.Message, 0, len(history)+2)
	if b.SystemPrompt != "" {
		prompt = append(prompt, provider.Message{Role: provider.RoleSystem, Content: b.SystemPrompt})
	}
	for _, m := range history {
		prompt = append(prompt, provider.Message{Role: m.Role, Content: m.Content})
	}
	prompt = append(prompt, provider.Message{Role: provider.RoleUser, Content: text})

	reply, err := h.provider.Chat(ctx, b.Model, prompt)
	if err != nil {
		return nil, err
	}
	turn.reply = reply
	return turn, nil
}

// persist stores an allowed turn, creating the conversation on first use.
func (h *ChatHandler) persist(ctx context.Context, u *user.User, b bot.Bot, turn *chatTurn) (*conversation.Conversation, error) {
	conv := turn.conv
	if conv == nil {
		conv = &conversation.Conversation{UserID: u.ID, BotID: b.ID, Title: titleFrom(turn.prompt)}
		if err := h.convs.Create(ctx, conv); err != nil {
			return nil, err
		}
	}
	err := h.convs.AppendMessages(ctx, conv.ID, []conversation.Message{
		{Role: provider.RoleUser, Content: turn.prompt},
		{Role: provider.RoleAssistant, Content: turn.reply},
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// Image handles POST /images.
func (h *ChatHandler) Image(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req imageRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}
	if fieldErrors := validation.ValidatePrompt("prompt", req.Prompt); len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}
	b, ok := h.botOfKind(w, req.BotID, bot.KindImage, requestID)
	if !ok {
		return
	}

	var url string
	d, err := h.gate.Run(r.Context(), r.Header.Get("Authorization"), b.Capability(),
		func(ctx context.Context, _ *user.User) error {
			var err error
			url, err = h.provider.Image(ctx, b.Model, req.Prompt)
			return err
		})
	if err != nil {
		writeGateError(w, err, requestID)
		return
	}
	if d.Outcome != gate.Allowed {
		writeDenial(w, d, requestID)
		return
	}

	response.Success(w, http.StatusOK, imageResponse{URL: url}, requestID)
}

// Audio handles POST /audio.
func (h *ChatHandler) Audio(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req audioRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}
	if fieldErrors := validation.ValidatePrompt("text", req.Text); len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}
	b, ok := h.botOfKind(w, req.BotID, bot.KindAudio, requestID)
	if !ok {
		return
	}

	var audio []byte
	d, err := h.gate.Run(r.Context(), r.Header.Get("Authorization"), b.Capability(),
		func(ctx context.Context, _ *user.User) error {
			var err error
			audio, err = h.provider.Speech(ctx, b.Model, req.Text)
			return err
		})
	if err != nil {
		writeGateError(w, err, requestID)
		return
	}
	if d.Outcome != gate.Allowed {
		writeDenial(w, d, requestID)
		return
	}

	response.Success(w, http.StatusOK, audioResponse{
		ContentType: "audio/mpeg",
		Audio:       base64.StdEncoding.EncodeToString(audio),
	}, requestID)
}

// botOfKind resolves an explicit bot id, or the first catalog bot of kind.
func (h *ChatHandler) botOfKind(w http.ResponseWriter, botID, kind, requestID string) (bot.Bot, bool) {
	var (
		b   bot.Bot
		err error
	)
	if botID == "" {
		b, err = h.catalog.FirstOfKind(kind)
	} else {
		b, err = h.catalog.Get(botID)
	}
	if err != nil {
		response.Err(w, http.StatusNotFound, "NOT_FOUND", "Bot not found", requestID)
		return bot.Bot{}, false
	}
	if b.Kind != kind {
		response.Err(w, http.StatusBadRequest, "INVALID_BOT", "Bot does not support "+kind, requestID)
		return bot.Bot{}, false
	}
	return b, true
}

func titleFrom(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(title) <= maxTitleLength {
		return title
	}
	runes := []rune(title)
	return string(runes[:maxTitleLength]) + "…"
}

// decodeJSON reads a size-limited JSON body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, requestID string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return false
	}
	return true
}
