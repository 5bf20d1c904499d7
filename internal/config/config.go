package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port          int    `envconfig:"PORT" default:"8080"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	Version       string `envconfig:"VERSION" default:"dev"`
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`
	DatabaseURL   string `envconfig:"DATABASE_URL" default:""`
	BcryptCost    int    `envconfig:"BCRYPT_COST" default:"12"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer string        `envconfig:"JWT_ISSUER" default:"botdesk"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	FreeLimit int           `envconfig:"FREE_LIMIT" default:"5"`

	BotsFile        string        `envconfig:"BOTS_FILE" default:""`
	Provider        string        `envconfig:"PROVIDER" default:"echo"`
	OpenAIAPIKey    string        `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL   string        `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"60s"`

	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID" default:""`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET" default:""`
	GoogleRedirectURL  string `envconfig:"GOOGLE_REDIRECT_URL" default:""`
	OAuthStateSecret   string `envconfig:"OAUTH_STATE_SECRET" default:""`

	RedisURL            string        `envconfig:"REDIS_URL" default:""`
	AuthRateLimitRPS    float64       `envconfig:"AUTH_RATE_LIMIT_RPS" default:"1"`
	AuthRateLimitBurst  int           `envconfig:"AUTH_RATE_LIMIT_BURST" default:"5"`
	AuthRateLimitWindow time.Duration `envconfig:"AUTH_RATE_LIMIT_WINDOW" default:"1m"`

	AMQPURL      string `envconfig:"AMQP_URL" default:""`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"botdesk.events"`

	AdminEmail    string `envconfig:"ADMIN_EMAIL" default:""`
	AdminPassword string `envconfig:"ADMIN_PASSWORD" default:""`
}

// Load reads an optional .env file and then the environment into a Config struct.
// Variables already present in the environment take precedence over .env.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks rules that span several fields.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}

	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORAGE_DRIVER is postgres")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.FreeLimit < 0 {
		return errors.New("FREE_LIMIT must not be negative")
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.Provider == "openai" && c.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY is required when PROVIDER is openai")
	}
	return nil
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}
