// Package postgres provides a PostgreSQL implementation of the market.Storage
// interface. Live queries are emulated by polling, since PostgreSQL has no
// native push channel for query result sets.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/servilista/servilista/pkg/market"
)

// Schema is the DDL the adapter expects. Applied by the operator, not the
// adapter.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    uid                TEXT PRIMARY KEY,
    email              TEXT NOT NULL DEFAULT '',
    is_premium         BOOLEAN NOT NULL DEFAULT FALSE,
    stripe_customer_id TEXT NOT NULL DEFAULT '',
    subscription_id    TEXT NOT NULL DEFAULT '',
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS services (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    price       DOUBLE PRECISION NOT NULL CHECK (price >= 0),
    category    TEXT NOT NULL DEFAULT '',
    user_id     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS services_user_id_idx ON services (user_id);
`

// Config holds PostgreSQL storage configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string.
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// WatchInterval is the poll period for live queries. Default: 1s.
	WatchInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		WatchInterval:   time.Second,
	}
}

// Storage implements market.Storage using PostgreSQL.
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// New creates a new PostgreSQL storage adapter.
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}
	if config.WatchInterval <= 0 {
		config.WatchInterval = time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{pool: pool, config: config}, nil
}

// Close releases the connection pool.
func (s *Storage) Close() {
	s.pool.Close()
}

// GetEntitlement implements market.EntitlementStore.
func (s *Storage) GetEntitlement(ctx context.Context, userID string) (*market.Entitlement, error) {
	ent := &market.Entitlement{UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT email, is_premium, stripe_customer_id, subscription_id, updated_at
		 FROM users WHERE uid = $1`, userID,
	).Scan(&ent.Email, &ent.IsPremium, &ent.StripeCustomerID, &ent.SubscriptionID, &ent.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, market.ErrEntitlementNotFound
		}
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}
	return ent, nil
}

// UpsertEntitlement implements market.EntitlementStore.
func (s *Storage) UpsertEntitlement(ctx context.Context, ent *market.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return fmt.Errorf("invalid entitlement")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (uid, email, is_premium, stripe_customer_id, subscription_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (uid) DO UPDATE SET
		   email = EXCLUDED.email,
		   is_premium = EXCLUDED.is_premium,
		   stripe_customer_id = EXCLUDED.stripe_customer_id,
		   subscription_id = EXCLUDED.subscription_id,
		   updated_at = now()`,
		ent.UserID, ent.Email, ent.IsPremium, ent.StripeCustomerID, ent.SubscriptionID)
	if err != nil {
		return fmt.Errorf("failed to upsert entitlement: %w", err)
	}
	return nil
}

// SetPremium implements market.EntitlementStore.
func (s *Storage) SetPremium(ctx context.Context, userID string, premium bool, customerID, subscriptionID string) error {
	if userID == "" {
		return fmt.Errorf("invalid user id")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (uid, is_premium, stripe_customer_id, subscription_id, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (uid) DO UPDATE SET
		   is_premium = EXCLUDED.is_premium,
		   stripe_customer_id = EXCLUDED.stripe_customer_id,
		   subscription_id = EXCLUDED.subscription_id,
		   updated_at = now()`,
		userID, premium, customerID, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to set premium flag: %w", err)
	}
	return nil
}

// ListListings implements market.ListingStore.
func (s *Storage) ListListings(ctx context.Context, ownerID string) ([]market.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, price, category, user_id
		 FROM services WHERE user_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	set := make([]market.Listing, 0)
	for rows.Next() {
		var l market.Listing
		if err := rows.Scan(&l.ID, &l.Name, &l.Description, &l.Price, &l.Category, &l.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		set = append(set, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return set, nil
}

// CreateListing implements market.ListingStore.
func (s *Storage) CreateListing(ctx context.Context, l *market.Listing) (string, error) {
	if l == nil || l.UserID == "" {
		return "", fmt.Errorf("invalid listing")
	}
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO services (id, name, description, price, category, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, l.Name, l.Description, l.Price, l.Category, l.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to create listing: %w", err)
	}
	return id, nil
}

// UpdateListing implements market.ListingStore.
func (s *Storage) UpdateListing(ctx context.Context, ownerID, id string, patch market.ListingPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE services SET
		   name = COALESCE($3, name),
		   description = COALESCE($4, description),
		   price = COALESCE($5, price),
		   category = COALESCE($6, category)
		 WHERE id = $1 AND user_id = $2`,
		id, ownerID, patch.Name, patch.Description, patch.Price, patch.Category)
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return market.ErrListingNotFound
	}
	return nil
}

// DeleteListing implements market.ListingStore. Deleting an absent id is a
// no-op success; deleting another user's listing reports not found.
func (s *Storage) DeleteListing(ctx context.Context, ownerID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM services WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM services WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to delete listing: %w", err)
		}
		if exists {
			return market.ErrListingNotFound
		}
	}
	return nil
}

// WatchListings implements market.ListingStore by polling at WatchInterval
// and emitting only when the result set changed.
func (s *Storage) WatchListings(ctx context.Context, ownerID string) (market.ListingWatcher, error) {
	initial, err := s.ListListings(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &watcher{
		ch:     make(chan []market.Listing, 4),
		cancel: cancel,
	}
	w.push(initial)

	go func() {
		ticker := time.NewTicker(s.config.WatchInterval)
		defer ticker.Stop()
		last := initial
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				set, err := s.ListListings(watchCtx, ownerID)
				if err != nil {
					continue // transient failures do not end the watch
				}
				if !reflect.DeepEqual(set, last) {
					last = set
					w.push(set)
				}
			}
		}
	}()
	return w, nil
}

type watcher struct {
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	ch     chan []market.Listing
}

func (w *watcher) Updates() <-chan []market.Listing { return w.ch }

func (w *watcher) Stop() {
	w.cancel()
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()
}

func (w *watcher) push(set []market.Listing) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	for {
		select {
		case w.ch <- set:
			return
		default:
			select {
			case <-w.ch:
			default:
			}
		}
	}
}
