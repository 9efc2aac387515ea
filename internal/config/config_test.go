package config_test

import (
	"testing"

	"github.com/servilista/servilista/internal/config"
)

func setRequiredStripeEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("STRIPE_PRICE_ID", "price_123")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredStripeEnv(t)
	t.Setenv("STORAGE_BACKEND", "memory")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.CheckoutSuccessURL == "" || cfg.CheckoutCancelURL == "" {
		t.Error("expected default checkout redirect URLs")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredStripeEnv(t)
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/market")
	t.Setenv("PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9999" || cfg.LogLevel != "debug" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.StorageBackend != config.BackendPostgres {
		t.Errorf("StorageBackend = %q", cfg.StorageBackend)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing stripe key",
			env: map[string]string{
				"STORAGE_BACKEND":       "memory",
				"STRIPE_WEBHOOK_SECRET": "whsec_123",
				"STRIPE_PRICE_ID":       "price_123",
			},
		},
		{
			name: "missing webhook secret",
			env: map[string]string{
				"STORAGE_BACKEND":   "memory",
				"STRIPE_SECRET_KEY": "sk_test_123",
				"STRIPE_PRICE_ID":   "price_123",
			},
		},
		{
			name: "firestore without project",
			env: map[string]string{
				"STORAGE_BACKEND":       "firestore",
				"STRIPE_SECRET_KEY":     "sk_test_123",
				"STRIPE_WEBHOOK_SECRET": "whsec_123",
				"STRIPE_PRICE_ID":       "price_123",
			},
		},
		{
			name: "postgres without url",
			env: map[string]string{
				"STORAGE_BACKEND":       "postgres",
				"STRIPE_SECRET_KEY":     "sk_test_123",
				"STRIPE_WEBHOOK_SECRET": "whsec_123",
				"STRIPE_PRICE_ID":       "price_123",
			},
		},
		{
			name: "unknown backend",
			env: map[string]string{
				"STORAGE_BACKEND":       "cassandra",
				"STRIPE_SECRET_KEY":     "sk_test_123",
				"STRIPE_WEBHOOK_SECRET": "whsec_123",
				"STRIPE_PRICE_ID":       "price_123",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := config.Load(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
