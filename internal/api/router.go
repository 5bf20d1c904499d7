package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/botdesk/botdesk/internal/api/handler"
	"github.com/botdesk/botdesk/internal/api/middleware"
	"github.com/botdesk/botdesk/internal/bot"
	"github.com/botdesk/botdesk/internal/conversation"
	"github.com/botdesk/botdesk/internal/oauth"
	"github.com/botdesk/botdesk/internal/provider"
	"github.com/botdesk/botdesk/internal/usage"
	"github.com/botdesk/botdesk/internal/user"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	DBPinger    handler.DBPinger
	Version     string
	OpenAPISpec []byte
	Metrics     http.Handler

	Resolver      middleware.IdentityResolver
	Policy        middleware.Authorizer
	Gate          handler.Gate
	Accounts      handler.AccountService
	Users         user.Repository
	Ledger        usage.Ledger
	FreeLimit     int
	Catalog       *bot.Catalog
	Provider      provider.Provider
	Conversations conversation.Repository

	Google      handler.GoogleFlow
	StateSigner *oauth.StateSigner

	Redis          *redis.Client
	AuthRateRPS    float64
	AuthRateBurst  int
	AuthRateWindow time.Duration
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Logger)

	healthHandler := handler.NewHealthHandler(deps.DBPinger, deps.Version)
	r.Get("/health", healthHandler.ServeHTTP)

	if len(deps.OpenAPISpec) > 0 {
		openapiHandler := handler.NewOpenAPIHandler(deps.OpenAPISpec, deps.Version)
		r.Get("/openapi.json", openapiHandler.ServeHTTP)
	}

	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	authHandler := handler.NewAuthHandler(deps.Accounts, deps.Google, deps.StateSigner)
	r.Route("/auth", func(r chi.Router) {
		window := deps.AuthRateWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(middleware.RedisRateLimit(deps.Redis, deps.AuthRateRPS, deps.AuthRateBurst, window))
		r.Post("/signup", authHandler.SignUp)
		r.Post("/login", authHandler.Login)
		r.Get("/google", authHandler.GoogleStart)
		r.Get("/google/callback", authHandler.GoogleCallback)
	})

	botHandler := handler.NewBotHandler(deps.Catalog)
	r.Get("/bots", botHandler.List)

	// Gated routes resolve identity inside the pipeline.
	chatHandler := handler.NewChatHandler(deps.Gate, deps.Catalog, deps.Provider, deps.Conversations)
	r.Post("/bots/{botID}/chat", chatHandler.Chat)
	r.Post("/images", chatHandler.Image)
	r.Post("/audio", chatHandler.Audio)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(deps.Resolver))

		accountHandler := handler.NewAccountHandler(deps.Accounts, deps.Ledger, deps.FreeLimit)
		r.Get("/me", accountHandler.Me)
		r.Get("/me/usage", accountHandler.Usage)
		r.Post("/me/upgrade", accountHandler.Upgrade)

		convHandler := handler.NewConversationHandler(deps.Conversations)
		r.Get("/conversations", convHandler.List)
		r.Get("/conversations/{id}/messages", convHandler.Messages)
		r.Delete("/conversations/{id}", convHandler.Delete)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(deps.Policy))
			adminHandler := handler.NewAdminHandler(deps.Users, deps.Accounts, deps.Ledger)
			r.Get("/users", adminHandler.ListUsers)
			r.Put("/users/{id}/premium", adminHandler.SetPremium)
			r.Delete("/users/{id}/usage/{botID}", adminHandler.ResetUsage)
		})
	})

	return r
}
