package payments

import (
	"context"
	"sync"
	"time"
)

// EventDeduper remembers processed webhook event ids so replayed deliveries
// can be acknowledged without re-processing. Processors deliver at-least-once;
// the entitlement write is idempotent, so dedup is an optimization, not a
// correctness requirement. Ids are marked only after processing succeeds, so
// a failed delivery stays unmarked and the processor's retry is processed.
type EventDeduper interface {
	// Seen reports whether the event id was already marked processed.
	Seen(ctx context.Context, eventID string) (bool, error)

	// MarkProcessed records the event id after successful processing.
	MarkProcessed(ctx context.Context, eventID string) error
}

// MemoryDeduper is an in-process EventDeduper with TTL-based expiry.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

// NewMemoryDeduper creates a deduper that forgets event ids after ttl.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryDeduper{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// Seen implements EventDeduper.
func (d *MemoryDeduper) Seen(_ context.Context, eventID string) (bool, error) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	expires, ok := d.seen[eventID]
	return ok && now.Before(expires), nil
}

// MarkProcessed implements EventDeduper.
func (d *MemoryDeduper) MarkProcessed(_ context.Context, eventID string) error {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Opportunistic expiry sweep when the map grows.
	if len(d.seen) > 1024 {
		for id, expires := range d.seen {
			if now.After(expires) {
				delete(d.seen, id)
			}
		}
	}

	d.seen[eventID] = now.Add(d.ttl)
	return nil
}
