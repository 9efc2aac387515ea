// Command server runs the marketplace HTTP API: registration, the
// owner-scoped service catalog with live-query push, premium gating, Stripe
// checkout and the entitlement webhook.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/servilista/servilista/identity/firebase"
	identitymem "github.com/servilista/servilista/identity/memory"
	"github.com/servilista/servilista/internal/config"
	"github.com/servilista/servilista/internal/httpapi"
	"github.com/servilista/servilista/pkg/market"
	marketzerolog "github.com/servilista/servilista/pkg/market/logger/zerolog"
	"github.com/servilista/servilista/pkg/payments"
	redisdedup "github.com/servilista/servilista/pkg/payments/dedup/redis"
	prommetrics "github.com/servilista/servilista/pkg/payments/metrics/prometheus"
	stripeprovider "github.com/servilista/servilista/pkg/payments/stripe"
	firestorestorage "github.com/servilista/servilista/storage/firestore"
	memorystorage "github.com/servilista/servilista/storage/memory"
	postgresstorage "github.com/servilista/servilista/storage/postgres"
)

const shutdownTimeout = 15 * time.Second

func main() {
	zl := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		zl.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zl = zl.Level(level)
	}
	log := marketzerolog.NewLogger(zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl, log); err != nil {
		zl.Fatal().Err(err).Msg("server exited with error")
	}
}

func run(ctx context.Context, cfg *config.Config, zl zerolog.Logger, log market.Logger) error {
	storage, cleanup, err := newStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer cleanup()

	identity, err := newIdentity(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize identity: %w", err)
	}

	gateway := market.NewGateway(identity, storage, log)
	resolver := market.NewResolver(storage, gateway.Users(), log)
	defer resolver.Close()
	guard := market.NewGuard(gateway, resolver)
	catalog := market.NewCatalog(storage, log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	provider, err := newPaymentsProvider(cfg, storage, registry, log)
	if err != nil {
		return fmt.Errorf("failed to initialize payments provider: %w", err)
	}

	handler, err := httpapi.NewHandler(httpapi.Config{
		Gateway:  gateway,
		Catalog:  catalog,
		Guard:    guard,
		Payments: provider,
		Logger:   log,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			Registry: registry,
		}),
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info().Str("addr", server.Addr).Str("backend", cfg.StorageBackend).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newStorage(ctx context.Context, cfg *config.Config) (market.Storage, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return memorystorage.New(), func() {}, nil

	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirebaseProjectID)
		if err != nil {
			return nil, nil, err
		}
		s, err := firestorestorage.New(client, firestorestorage.Config{})
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return s, func() { client.Close() }, nil

	case config.BackendPostgres:
		s, err := postgresstorage.New(ctx, postgresstorage.Config{ConnectionString: cfg.DatabaseURL})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newIdentity(ctx context.Context, cfg *config.Config) (market.Identity, error) {
	// The memory backend runs self-contained; Firebase identity needs a
	// project, which the firestore and postgres deployments carry.
	if cfg.FirebaseProjectID == "" {
		return identitymem.New(), nil
	}
	return firebase.New(ctx, firebase.Config{
		ProjectID:       cfg.FirebaseProjectID,
		CredentialsFile: cfg.FirebaseCredentialsFile,
	})
}

func newPaymentsProvider(cfg *config.Config, store market.EntitlementStore, registry *prometheus.Registry, log market.Logger) (payments.Provider, error) {
	var deduper payments.EventDeduper
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		d, err := redisdedup.New(client, redisdedup.Config{})
		if err != nil {
			return nil, err
		}
		deduper = d
	} else {
		deduper = payments.NewMemoryDeduper(24 * time.Hour)
	}

	provider, err := stripeprovider.NewProvider(stripeprovider.Config{
		Config: payments.Config{
			Entitlements: store,
			PriceID:      cfg.StripePriceID,
			SuccessURL:   cfg.CheckoutSuccessURL,
			CancelURL:    cfg.CheckoutCancelURL,
			Deduper:      deduper,
			Metrics:      prommetrics.NewMetrics(registry, cfg.MetricsNamespace),
			Logger:       log,
		},
		StripeAPIKey:        cfg.StripeSecretKey,
		StripeWebhookSecret: cfg.StripeWebhookSecret,
	})
	if err != nil {
		return nil, err
	}
	return provider, nil
}
