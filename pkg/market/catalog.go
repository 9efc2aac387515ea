package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Catalog is the service catalog store: owner-scoped CRUD plus a live query
// over a user's listings. The caller identity is passed explicitly; a nil
// user means signed out.
type Catalog struct {
	storage ListingStore
	log     Logger
}

// NewCatalog creates a catalog over the given listing store. logger may be nil.
func NewCatalog(storage ListingStore, logger Logger) *Catalog {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &Catalog{storage: storage, log: logger}
}

// List returns the full current listing set for the caller.
// A signed-out caller gets an empty set, not an error.
func (c *Catalog) List(ctx context.Context, user *User) ([]Listing, error) {
	if user == nil {
		return []Listing{}, nil
	}
	listings, err := c.storage.ListListings(ctx, user.UID)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return listings, nil
}

// Watch opens a live query for the caller's listings. The watcher must be
// stopped on teardown or the underlying push channel leaks. A signed-out
// caller gets a watcher that emits a single empty set.
func (c *Catalog) Watch(ctx context.Context, user *User) (ListingWatcher, error) {
	if user == nil {
		return newStaticWatcher([]Listing{}), nil
	}
	w, err := c.storage.WatchListings(ctx, user.UID)
	if err != nil {
		return nil, fmt.Errorf("failed to open listing watch: %w", err)
	}
	return w, nil
}

// Create validates and persists a listing, stamping the owner from the
// authenticated session. Any client-supplied owner is discarded.
func (c *Catalog) Create(ctx context.Context, user *User, l Listing) (string, error) {
	if user == nil {
		return "", ErrUnauthenticated
	}
	if err := validateListing(l); err != nil {
		return "", err
	}

	l.UserID = user.UID
	id, err := c.storage.CreateListing(ctx, &l)
	if err != nil {
		return "", fmt.Errorf("failed to create listing: %w", err)
	}

	c.log.Info("listing created",
		F("id", id), F("uid", user.UID))
	return id, nil
}

// Update merges a partial patch into the caller's listing.
func (c *Catalog) Update(ctx context.Context, user *User, id string, patch ListingPatch) error {
	if user == nil {
		return ErrUnauthenticated
	}
	if patch.IsEmpty() {
		return nil
	}
	if patch.Price != nil && *patch.Price < 0 {
		return fmt.Errorf("%w: price must be non-negative", ErrInvalidListing)
	}
	return c.storage.UpdateListing(ctx, user.UID, id, patch)
}

// UpdatePrice changes only the price. This is the premium-gated mutation;
// gating happens at the route guard, not here.
func (c *Catalog) UpdatePrice(ctx context.Context, user *User, id string, price float64) error {
	return c.Update(ctx, user, id, ListingPatch{Price: &price})
}

// Delete removes the caller's listing. Deleting an id that is already gone
// succeeds; see ListingStore.DeleteListing.
func (c *Catalog) Delete(ctx context.Context, user *User, id string) error {
	if user == nil {
		return ErrUnauthenticated
	}
	return c.storage.DeleteListing(ctx, user.UID, id)
}

func validateListing(l Listing) error {
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidListing)
	}
	if l.Price < 0 {
		return fmt.Errorf("%w: price must be non-negative", ErrInvalidListing)
	}
	return nil
}

// staticWatcher emits one fixed result set and then stays silent. Used for
// signed-out watches.
type staticWatcher struct {
	ch   chan []Listing
	once sync.Once
}

func newStaticWatcher(set []Listing) *staticWatcher {
	w := &staticWatcher{ch: make(chan []Listing, 1)}
	w.ch <- set
	return w
}

func (w *staticWatcher) Updates() <-chan []Listing { return w.ch }

func (w *staticWatcher) Stop() {
	w.once.Do(func() { close(w.ch) })
}
