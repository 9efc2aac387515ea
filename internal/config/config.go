// Package config loads server configuration from environment variables.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Storage backend selectors.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
)

// Config holds all configuration for the server.
type Config struct {
	Port     string `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// StorageBackend selects the listing/entitlement store:
	// "firestore", "postgres" or "memory".
	StorageBackend string `mapstructure:"STORAGE_BACKEND"`

	FirebaseProjectID       string `mapstructure:"FIREBASE_PROJECT_ID"`
	FirebaseCredentialsFile string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// RedisAddr enables the Redis webhook dedup store when non-empty.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripePriceID       string `mapstructure:"STRIPE_PRICE_ID"`

	// Fixed, environment-specific client redirect targets.
	CheckoutSuccessURL string `mapstructure:"CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL  string `mapstructure:"CHECKOUT_CANCEL_URL"`

	MetricsNamespace string `mapstructure:"METRICS_NAMESPACE"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE_BACKEND", BackendFirestore)
	v.SetDefault("CHECKOUT_SUCCESS_URL", "http://localhost:4200/success")
	v.SetDefault("CHECKOUT_CANCEL_URL", "http://localhost:4200/cancel")
	v.SetDefault("METRICS_NAMESPACE", "servilista")

	keys := []string{
		"PORT", "LOG_LEVEL", "STORAGE_BACKEND",
		"FIREBASE_PROJECT_ID", "GOOGLE_APPLICATION_CREDENTIALS",
		"DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD",
		"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "STRIPE_PRICE_ID",
		"CHECKOUT_SUCCESS_URL", "CHECKOUT_CANCEL_URL", "METRICS_NAMESPACE",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendMemory:
	case BackendFirestore:
		if c.FirebaseProjectID == "" {
			return errors.New("FIREBASE_PROJECT_ID is required with the firestore backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required with the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	if c.StripeSecretKey == "" {
		return errors.New("STRIPE_SECRET_KEY is required")
	}
	if c.StripeWebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required")
	}
	if c.StripePriceID == "" {
		return errors.New("STRIPE_PRICE_ID is required")
	}
	return nil
}
