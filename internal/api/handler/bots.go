package handler

import (
	"net/http"

	"github.com/botdesk/botdesk/internal/api/middleware"
	"github.com/botdesk/botdesk/internal/api/response"
	"github.com/botdesk/botdesk/internal/bot"
	"github.com/botdesk/botdesk/internal/entitlement"
)

type botResponse struct {
	bot.Bot
	Metered bool `json:"metered"`
}

// BotHandler lists the bot catalog.
type BotHandler struct {
	catalog *bot.Catalog
}

// NewBotHandler creates a new BotHandler.
func NewBotHandler(catalog *bot.Catalog) *BotHandler {
	return &BotHandler{catalog: catalog}
}

// List handles GET /bots.
func (h *BotHandler) List(w http.ResponseWriter, r *http.Request) {
	bots := h.catalog.List()
	items := make([]botResponse, 0, len(bots))
	for _, b := range bots {
		items = append(items, botResponse{Bot: b, Metered: b.Capability().Kind == entitlement.KindMetered})
	}
	response.List(w, items, len(items), middleware.GetRequestID(r.Context()))
}
