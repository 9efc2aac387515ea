// Package memory provides an in-memory implementation of the market.Storage
// interface. This implementation is primarily intended for testing and
// development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/servilista/servilista/pkg/market"
)

// Storage implements market.Storage using in-memory maps.
type Storage struct {
	mu           sync.RWMutex
	entitlements map[string]*market.Entitlement
	listings     map[string]*market.Listing
	watchers     map[string]map[int]*watcher // ownerID -> watcher set
	nextWatchID  int
}

// New creates a new in-memory storage adapter.
func New() *Storage {
	return &Storage{
		entitlements: make(map[string]*market.Entitlement),
		listings:     make(map[string]*market.Listing),
		watchers:     make(map[string]map[int]*watcher),
	}
}

// GetEntitlement implements market.EntitlementStore.
func (s *Storage) GetEntitlement(ctx context.Context, userID string) (*market.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.entitlements[userID]
	if !ok {
		return nil, market.ErrEntitlementNotFound
	}

	// Return a copy to prevent external mutations
	entCopy := *ent
	return &entCopy, nil
}

// UpsertEntitlement implements market.EntitlementStore.
func (s *Storage) UpsertEntitlement(ctx context.Context, ent *market.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return fmt.Errorf("invalid entitlement")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entCopy := *ent
	s.entitlements[ent.UserID] = &entCopy
	return nil
}

// SetPremium implements market.EntitlementStore. The write is a field
// overwrite, so replaying it leaves the record unchanged.
func (s *Storage) SetPremium(ctx context.Context, userID string, premium bool, customerID, subscriptionID string) error {
	if userID == "" {
		return fmt.Errorf("invalid user id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entitlements[userID]
	if !ok {
		ent = &market.Entitlement{UserID: userID}
		s.entitlements[userID] = ent
	}
	ent.IsPremium = premium
	ent.StripeCustomerID = customerID
	ent.SubscriptionID = subscriptionID
	return nil
}

// ListListings implements market.ListingStore.
func (s *Storage) ListListings(ctx context.Context, ownerID string) ([]market.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(ownerID), nil
}

// CreateListing implements market.ListingStore.
func (s *Storage) CreateListing(ctx context.Context, l *market.Listing) (string, error) {
	if l == nil || l.UserID == "" {
		return "", fmt.Errorf("invalid listing")
	}

	s.mu.Lock()
	id := uuid.NewString()
	stored := *l
	stored.ID = id
	s.listings[id] = &stored
	set := s.snapshotLocked(l.UserID)
	watchers := s.watchersLocked(l.UserID)
	s.mu.Unlock()

	notify(watchers, set)
	return id, nil
}

// UpdateListing implements market.ListingStore.
func (s *Storage) UpdateListing(ctx context.Context, ownerID, id string, patch market.ListingPatch) error {
	s.mu.Lock()
	l, ok := s.listings[id]
	if !ok || l.UserID != ownerID {
		s.mu.Unlock()
		return market.ErrListingNotFound
	}
	patch.Apply(l)
	set := s.snapshotLocked(ownerID)
	watchers := s.watchersLocked(ownerID)
	s.mu.Unlock()

	notify(watchers, set)
	return nil
}

// DeleteListing implements market.ListingStore. Absent ids are treated as
// already deleted.
func (s *Storage) DeleteListing(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	l, ok := s.listings[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if l.UserID != ownerID {
		s.mu.Unlock()
		return market.ErrListingNotFound
	}
	delete(s.listings, id)
	set := s.snapshotLocked(ownerID)
	watchers := s.watchersLocked(ownerID)
	s.mu.Unlock()

	notify(watchers, set)
	return nil
}

// WatchListings implements market.ListingStore. The initial result set is
// delivered immediately; every mutation to the owner's listings re-delivers
// the full set.
func (s *Storage) WatchListings(ctx context.Context, ownerID string) (market.ListingWatcher, error) {
	s.mu.Lock()
	id := s.nextWatchID
	s.nextWatchID++
	w := &watcher{
		ch:      make(chan []market.Listing, 4),
		storage: s,
		ownerID: ownerID,
		id:      id,
	}
	if s.watchers[ownerID] == nil {
		s.watchers[ownerID] = make(map[int]*watcher)
	}
	s.watchers[ownerID][id] = w
	initial := s.snapshotLocked(ownerID)
	s.mu.Unlock()

	w.push(initial)
	return w, nil
}

// WatcherCount returns the number of open watchers for an owner. Test hook.
func (s *Storage) WatcherCount(ownerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers[ownerID])
}

func (s *Storage) snapshotLocked(ownerID string) []market.Listing {
	set := make([]market.Listing, 0)
	for _, l := range s.listings {
		if l.UserID == ownerID {
			set = append(set, *l)
		}
	}
	sort.Slice(set, func(i, j int) bool { return set[i].ID < set[j].ID })
	return set
}

func (s *Storage) watchersLocked(ownerID string) []*watcher {
	ws := make([]*watcher, 0, len(s.watchers[ownerID]))
	for _, w := range s.watchers[ownerID] {
		ws = append(ws, w)
	}
	return ws
}

func notify(watchers []*watcher, set []market.Listing) {
	for _, w := range watchers {
		w.push(set)
	}
}

type watcher struct {
	storage *Storage
	ownerID string
	id      int

	mu     sync.Mutex
	closed bool
	ch     chan []market.Listing
}

func (w *watcher) Updates() <-chan []market.Listing { return w.ch }

func (w *watcher) Stop() {
	w.storage.mu.Lock()
	if set, ok := w.storage.watchers[w.ownerID]; ok {
		delete(set, w.id)
		if len(set) == 0 {
			delete(w.storage.watchers, w.ownerID)
		}
	}
	w.storage.mu.Unlock()

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
			// Slow consumer: drop the stale set, keep the newest.
			select {
			case <-w.ch:
			default:
			}
		}
	}
}
