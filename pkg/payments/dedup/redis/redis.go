// Package redis provides a Redis-backed payments.EventDeduper so replayed
// webhook deliveries are recognized across server instances.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper implements payments.EventDeduper using keys with a TTL.
type Deduper struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// Config holds Redis deduper configuration.
type Config struct {
	// KeyPrefix namespaces dedup keys. Default: "payments:event:"
	KeyPrefix string

	// TTL is how long processed event ids are remembered. Default: 24h.
	TTL time.Duration
}

// New creates a Redis-backed deduper.
func New(client redis.UniversalClient, config Config) (*Deduper, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "payments:event:"
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	return &Deduper{
		client:    client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
	}, nil
}

// Seen implements payments.EventDeduper.
func (d *Deduper) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.keyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check event id: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed implements payments.EventDeduper.
func (d *Deduper) MarkProcessed(ctx context.Context, eventID string) error {
	if err := d.client.Set(ctx, d.keyPrefix+eventID, 1, d.ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}
