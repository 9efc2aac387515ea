package market

import "context"

// EntitlementStore persists per-user premium records at users/{uid}.
type EntitlementStore interface {
	// GetEntitlement returns the record for userID, or ErrEntitlementNotFound.
	GetEntitlement(ctx context.Context, userID string) (*Entitlement, error)

	// UpsertEntitlement creates or merges the full record. Used at registration.
	UpsertEntitlement(ctx context.Context, ent *Entitlement) error

	// SetPremium overwrites the premium flag and processor ids, leaving other
	// fields untouched. The overwrite is naturally idempotent, so duplicate
	// webhook deliveries cannot corrupt the record.
	SetPremium(ctx context.Context, userID string, premium bool, customerID, subscriptionID string) error
}

// ListingStore persists service listings at services/{id}. All reads and
// mutations are scoped by owner UID; a mutation against another user's
// listing reports ErrListingNotFound rather than leaking its existence.
type ListingStore interface {
	// ListListings returns the full current listing set for ownerID.
	ListListings(ctx context.Context, ownerID string) ([]Listing, error)

	// CreateListing persists a listing and returns the generated id.
	CreateListing(ctx context.Context, l *Listing) (string, error)

	// UpdateListing merges the patch into the listing. Returns
	// ErrListingNotFound if id does not exist or is not owned by ownerID.
	UpdateListing(ctx context.Context, ownerID, id string, patch ListingPatch) error

	// DeleteListing removes the listing. Deleting an absent id succeeds
	// (idempotent-on-absence, matching document-store delete semantics).
	DeleteListing(ctx context.Context, ownerID, id string) error

	// WatchListings opens a live query: the full listing set for ownerID is
	// delivered immediately and re-delivered on every change. The watcher
	// must be stopped to release the underlying push channel.
	WatchListings(ctx context.Context, ownerID string) (ListingWatcher, error)
}

// ListingWatcher is a live query handle.
type ListingWatcher interface {
	// Updates delivers the full result set on every change. Closed by Stop
	// or when the watch fails.
	Updates() <-chan []Listing

	// Stop cancels the live query. Safe to call more than once.
	Stop()
}

// Storage combines the two stores. Adapters under storage/ implement it.
type Storage interface {
	EntitlementStore
	ListingStore
}
