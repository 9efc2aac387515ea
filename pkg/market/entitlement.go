package market

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Resolver derives the premium flag by joining the current-user stream
// against the per-user entitlement record. It emits false when no user is
// signed in, when the record is absent, or when the read fails; it never
// propagates a read error to subscribers. The latest value is cached so
// simultaneous consumers do not re-issue redundant reads.
type Resolver struct {
	store   EntitlementStore
	users   *Subscription[*User]
	premium *Stream[bool]
	group   singleflight.Group
	log     Logger

	mu   sync.Mutex
	uid  string
	done chan struct{}
	once sync.Once
}

// NewResolver starts a resolver over the given user stream. Close releases
// the stream subscription.
func NewResolver(store EntitlementStore, users *Stream[*User], logger Logger) *Resolver {
	if logger == nil {
		logger = &NoopLogger{}
	}
	r := &Resolver{
		store:   store,
		users:   users.Subscribe(1),
		premium: NewStream[bool](),
		log:     logger,
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Premium returns the boolean entitlement stream.
func (r *Resolver) Premium() *Stream[bool] {
	return r.premium
}

// Snapshot returns the latest resolved value without touching storage.
// Before the first resolution it reports false, the safe default.
func (r *Resolver) Snapshot() bool {
	v, ok := r.premium.Latest()
	return ok && v
}

// Resolve reads the entitlement record for userID once. Absent records and
// read failures resolve to false.
func (r *Resolver) Resolve(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	v, err, _ := r.group.Do(userID, func() (interface{}, error) {
		ent, err := r.store.GetEntitlement(ctx, userID)
		if err != nil {
			if !errors.Is(err, ErrEntitlementNotFound) {
				r.log.Warn("entitlement read failed, resolving to false",
					F("uid", userID), Err(err))
			}
			return false, nil
		}
		return ent.IsPremium, nil
	})
	if err != nil {
		return false
	}
	return v.(bool)
}

// Refresh re-reads the record for the current user and re-emits the result.
// Call after an out-of-band entitlement change (webhook) to converge sooner
// than the next sign-in event.
func (r *Resolver) Refresh(ctx context.Context) bool {
	r.mu.Lock()
	uid := r.uid
	r.mu.Unlock()

	premium := r.Resolve(ctx, uid)
	r.premium.Publish(premium)
	return premium
}

// Close stops the resolver and releases its stream subscription.
func (r *Resolver) Close() {
	r.once.Do(func() {
		close(r.done)
		r.users.Cancel()
	})
}

func (r *Resolver) run() {
	for {
		select {
		case <-r.done:
			return
		case user, ok := <-r.users.Updates():
			if !ok {
				return
			}
			uid := ""
			if user != nil {
				uid = user.UID
			}
			r.mu.Lock()
			r.uid = uid
			r.mu.Unlock()

			r.premium.Publish(r.Resolve(context.Background(), uid))
		}
	}
}
