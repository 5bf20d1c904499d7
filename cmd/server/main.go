package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	specpkg "github.com/botdesk/botdesk/api"
	"github.com/botdesk/botdesk/internal/api"
	"github.com/botdesk/botdesk/internal/api/handler"
	"github.com/botdesk/botdesk/internal/auth"
	"github.com/botdesk/botdesk/internal/bot"
	"github.com/botdesk/botdesk/internal/config"
	"github.com/botdesk/botdesk/internal/conversation"
	"github.com/botdesk/botdesk/internal/database"
	"github.com/botdesk/botdesk/internal/entitlement"
	"github.com/botdesk/botdesk/internal/events"
	"github.com/botdesk/botdesk/internal/gate"
	"github.com/botdesk/botdesk/internal/metrics"
	"github.com/botdesk/botdesk/internal/oauth"
	"github.com/botdesk/botdesk/internal/provider"
	"github.com/botdesk/botdesk/internal/token"
	"github.com/botdesk/botdesk/internal/usage"
	"github.com/botdesk/botdesk/internal/user"
)

// stores groups the storage backends selected by STORAGE_DRIVER.
type stores struct {
	users  user.Repository
	ledger usage.Ledger
	convs  conversation.Repository
	pinger handler.DBPinger
	close  func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)
	metrics.Register(prometheus.DefaultRegisterer)

	ctx := context.Background()

	st, err := openStores(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize storage", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	defer st.close()

	catalog, err := bot.Load(cfg.BotsFile)
	if err != nil {
		slog.Error("failed to load bot catalog", "error", err)
		os.Exit(1)
	}

	registry := provider.NewRegistry()
	registry.Register("echo", provider.Echo{})
	registry.Register("openai", provider.NewOpenAI(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, nil))
	backend, ok := registry.Get(cfg.Provider)
	if !ok {
		slog.Error("unknown provider", "provider", cfg.Provider, "available", registry.Names())
		os.Exit(1)
	}
	backend = provider.WithMetrics(backend)

	publisher := initPublisher(cfg)
	defer publisher.Close()

	redisClient := initRedis(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	codec := token.NewCodec(cfg.JWTSecret, cfg.JWTIssuer, time.Now)
	resolver := auth.NewResolver(codec, st.users)
	policy := entitlement.NewPolicy(st.ledger, cfg.FreeLimit)
	pipeline := gate.New(resolver, policy, st.ledger, gate.WithTimeout(cfg.ProviderTimeout))
	authService := auth.NewService(st.users, codec, cfg.TokenTTL, cfg.BcryptCost, publisher)

	if cfg.AdminEmail != "" {
		if _, err := authService.BootstrapAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			slog.Error("failed to bootstrap admin account", "error", err)
			os.Exit(1)
		}
	}

	var google handler.GoogleFlow
	if cfg.GoogleEnabled() {
		g, err := oauth.NewGoogle(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		if err != nil {
			slog.Warn("google sign-in disabled", "error", err)
		} else {
			google = g
		}
	}
	stateSecret := cfg.OAuthStateSecret
	if stateSecret == "" {
		stateSecret = cfg.JWTSecret
	}

	router := api.NewRouter(api.RouterDeps{
		DBPinger:       st.pinger,
		Version:        cfg.Version,
		OpenAPISpec:    specpkg.OpenAPISpec,
		Resolver:       resolver,
		Policy:         policy,
		Gate:           pipeline,
		Accounts:       authService,
		Users:          st.users,
		Ledger:         st.ledger,
		FreeLimit:      cfg.FreeLimit,
		Catalog:        catalog,
		Provider:       backend,
		Conversations:  st.convs,
		Google:         google,
		StateSigner:    oauth.NewStateSigner(stateSecret),
		Redis:          redisClient,
		AuthRateRPS:    cfg.AuthRateLimitRPS,
		AuthRateBurst:  cfg.AuthRateLimitBurst,
		AuthRateWindow: cfg.AuthRateLimitWindow,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting botdesk server", "port", cfg.Port, "version", cfg.Version,
			"storage", cfg.StorageDriver, "provider", cfg.Provider, "freeLimit", cfg.FreeLimit)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.StorageDriver == config.DriverMemory {
		slog.Warn("using in-memory storage; data is lost on restart")
		return &stores{
			users:  user.NewMemoryRepository(),
			ledger: usage.NewMemoryLedger(time.Now),
			convs:  conversation.NewMemoryRepository(),
			close:  func() {},
		}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := database.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(connectCtx); err != nil {
		db.Close()
		return nil, err
	}

	pool := db.Pool()
	return &stores{
		users:  user.NewPostgresRepository(pool),
		ledger: usage.NewPostgresLedger(pool, time.Now),
		convs:  conversation.NewPostgresRepository(pool),
		pinger: db,
		close:  db.Close,
	}, nil
}

// initPublisher falls back to a no-op publisher when AMQP is not configured or unreachable.
func initPublisher(cfg *config.Config) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.Noop{}
	}
	p, err := events.NewRabbit(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		slog.Warn("event publishing disabled", "error", err)
		return events.Noop{}
	}
	return p
}

// initRedis returns nil when REDIS_URL is unset or unreachable; the rate
// limiter then runs in process memory.
func initRedis(cfg *config.Config) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Warn("invalid REDIS_URL; using in-memory rate limiting", "error", err)
		return nil
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable; using in-memory rate limiting", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}
