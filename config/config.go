package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const EnvProduction = "production"

// Config holds all runtime configuration, populated from environment
// variables (with an optional .env file for local development).
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	DatabaseURL       string        `envconfig:"DB_CONNECTION_STRING" default:"user=postgres password=password dbname=courier host=localhost port=5432 sslmode=disable"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"25"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`

	// WebhookSigningKey is the shared secret used to verify inbound webhook
	// signatures. Required in production; verification is disabled in other
	// environments so local deliveries work without a relay.
	WebhookSigningKey string `envconfig:"WEBHOOK_SIGNING_KEY"`

	// InboundEmailDomain is appended to bare local-parts in the recipient
	// field (e.g. "inbox-abc" -> "inbox-abc@in.courier.dev").
	InboundEmailDomain string `envconfig:"INBOUND_EMAIL_DOMAIN" default:"in.courier.dev"`

	// DefaultRecipientUserID, when set, receives mail addressed to aliases
	// that match no user. When empty, such deliveries are skipped with
	// reason unknown_recipient.
	DefaultRecipientUserID string `envconfig:"DEFAULT_RECIPIENT_USER_ID"`

	// Free-tier plan limits, used when a user has no active subscription.
	FreeMaxSourcesPerUser    int `envconfig:"FREE_MAX_SOURCES_PER_USER" default:"25"`
	FreeMaxNewslettersPerDay int `envconfig:"FREE_MAX_NEWSLETTERS_PER_DAY" default:"50"`
}

// Load reads configuration from the environment. A missing .env file is not
// an error; explicit environment variables always win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if cfg.IsProduction() && cfg.WebhookSigningKey == "" {
		return nil, fmt.Errorf("WEBHOOK_SIGNING_KEY is required when ENVIRONMENT=%s", EnvProduction)
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
