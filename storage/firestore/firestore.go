// Package firestore provides a Firestore implementation of the market.Storage
// interface, persisting entitlement records at users/{uid} and service
// listings at services/{id}.
package firestore

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/servilista/servilista/pkg/market"
)

// Storage implements market.Storage using Google Cloud Firestore.
type Storage struct {
	client             *firestore.Client
	usersCollection    string
	servicesCollection string
}

// Config holds Firestore storage configuration.
type Config struct {
	// UsersCollection is the collection for entitlement records.
	// Default: "users"
	UsersCollection string

	// ServicesCollection is the collection for service listings.
	// Default: "services"
	ServicesCollection string
}

// New creates a new Firestore storage adapter.
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.UsersCollection == "" {
		config.UsersCollection = "users"
	}
	if config.ServicesCollection == "" {
		config.ServicesCollection = "services"
	}

	return &Storage{
		client:             client,
		usersCollection:    config.UsersCollection,
		servicesCollection: config.ServicesCollection,
	}, nil
}

// GetEntitlement implements market.EntitlementStore.
func (s *Storage) GetEntitlement(ctx context.Context, userID string) (*market.Entitlement, error) {
	doc := s.client.Collection(s.usersCollection).Doc(userID)
	snap, err := doc.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, market.ErrEntitlementNotFound
		}
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}

	if !snap.Exists() {
		return nil, market.ErrEntitlementNotFound
	}

	data := snap.Data()
	return &market.Entitlement{
		UserID:           userID,
		Email:            getString(data, "email"),
		IsPremium:        getBool(data, "isPremium"),
		StripeCustomerID: getString(data, "stripeCustomerId"),
		SubscriptionID:   getString(data, "subscriptionId"),
		UpdatedAt:        snap.UpdateTime,
	}, nil
}

// UpsertEntitlement implements market.EntitlementStore.
func (s *Storage) UpsertEntitlement(ctx context.Context, ent *market.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return fmt.Errorf("invalid entitlement")
	}

	doc := s.client.Collection(s.usersCollection).Doc(ent.UserID)
	data := map[string]interface{}{
		"email":     ent.Email,
		"isPremium": ent.IsPremium,
	}
	if ent.StripeCustomerID != "" {
		data["stripeCustomerId"] = ent.StripeCustomerID
	}
	if ent.SubscriptionID != "" {
		data["subscriptionId"] = ent.SubscriptionID
	}

	if _, err := doc.Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to set entitlement: %w", err)
	}
	return nil
}

// SetPremium implements market.EntitlementStore. The merge overwrites only
// the premium flag and the processor ids, so duplicate webhook deliveries
// converge on the same document state.
func (s *Storage) SetPremium(ctx context.Context, userID string, premium bool, customerID, subscriptionID string) error {
	if userID == "" {
		return fmt.Errorf("invalid user id")
	}

	doc := s.client.Collection(s.usersCollection).Doc(userID)
	data := map[string]interface{}{
		"isPremium":        premium,
		"stripeCustomerId": customerID,
		"subscriptionId":   subscriptionID,
	}
	if _, err := doc.Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to set premium flag: %w", err)
	}
	return nil
}

// ListListings implements market.ListingStore.
func (s *Storage) ListListings(ctx context.Context, ownerID string) ([]market.Listing, error) {
	it := s.ownerQuery(ownerID).Documents(ctx)
	defer it.Stop()

	set := make([]market.Listing, 0)
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list listings: %w", err)
		}
		set = append(set, listingFromDoc(snap))
	}
	return set, nil
}

// CreateListing implements market.ListingStore. The document id is generated
// by Firestore.
func (s *Storage) CreateListing(ctx context.Context, l *market.Listing) (string, error) {
	if l == nil || l.UserID == "" {
		return "", fmt.Errorf("invalid listing")
	}

	ref, _, err := s.client.Collection(s.servicesCollection).Add(ctx, map[string]interface{}{
		"name":        l.Name,
		"description": l.Description,
		"price":       l.Price,
		"category":    l.Category,
		"userId":      l.UserID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create listing: %w", err)
	}
	return ref.ID, nil
}

// UpdateListing implements market.ListingStore. Fields in the patch are
// merged; others are left untouched (last-write-wins per field).
func (s *Storage) UpdateListing(ctx context.Context, ownerID, id string, patch market.ListingPatch) error {
	doc := s.client.Collection(s.servicesCollection).Doc(id)
	if err := s.checkOwner(ctx, doc, ownerID); err != nil {
		return err
	}

	updates := make([]firestore.Update, 0, 4)
	if patch.Name != nil {
		updates = append(updates, firestore.Update{Path: "name", Value: *patch.Name})
	}
	if patch.Description != nil {
		updates = append(updates, firestore.Update{Path: "description", Value: *patch.Description})
	}
	if patch.Price != nil {
		updates = append(updates, firestore.Update{Path: "price", Value: *patch.Price})
	}
	if patch.Category != nil {
		updates = append(updates, firestore.Update{Path: "category", Value: *patch.Category})
	}
	if len(updates) == 0 {
		return nil
	}

	if _, err := doc.Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return market.ErrListingNotFound
		}
		return fmt.Errorf("failed to update listing: %w", err)
	}
	return nil
}

// DeleteListing implements market.ListingStore. Firestore deletes succeed on
// absent documents, which matches the idempotent-on-absence policy.
func (s *Storage) DeleteListing(ctx context.Context, ownerID, id string) error {
	doc := s.client.Collection(s.servicesCollection).Doc(id)
	err := s.checkOwner(ctx, doc, ownerID)
	if err == market.ErrListingNotFound {
		snap, getErr := doc.Get(ctx)
		if getErr == nil && snap.Exists() {
			// Exists but owned by someone else.
			return market.ErrListingNotFound
		}
		return nil // already gone
	}
	if err != nil {
		return err
	}

	if _, err := doc.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	return nil
}

// WatchListings implements market.ListingStore using Firestore query
// snapshots. Every change to the owner's listings re-delivers the full
// result set. Stop releases the snapshot listener.
func (s *Storage) WatchListings(ctx context.Context, ownerID string) (market.ListingWatcher, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	it := s.ownerQuery(ownerID).Snapshots(watchCtx)

	w := &watcher{
		ch:     make(chan []market.Listing, 4),
		cancel: cancel,
		it:     it,
	}
	go w.run()
	return w, nil
}

func (s *Storage) ownerQuery(ownerID string) firestore.Query {
	return s.client.Collection(s.servicesCollection).Where("userId", "==", ownerID)
}

func (s *Storage) checkOwner(ctx context.Context, doc *firestore.DocumentRef, ownerID string) error {
	snap, err := doc.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return market.ErrListingNotFound
		}
		return fmt.Errorf("failed to read listing: %w", err)
	}
	if !snap.Exists() || getString(snap.Data(), "userId") != ownerID {
		return market.ErrListingNotFound
	}
	return nil
}

type watcher struct {
	cancel context.CancelFunc
	it     *firestore.QuerySnapshotIterator

	mu     sync.Mutex
	closed bool
	ch     chan []market.Listing
}

func (w *watcher) Updates() <-chan []market.Listing { return w.ch }

func (w *watcher) Stop() {
	w.cancel()
	w.it.Stop()
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()
}

func (w *watcher) run() {
	for {
		snap, err := w.it.Next()
		if err != nil {
			// Canceled or stream failure: the watch is over either way.
			w.Stop()
			return
		}

		set := make([]market.Listing, 0)
		docs := snap.Documents
		for {
			doc, err := docs.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				w.Stop()
				return
			}
			set = append(set, listingFromDoc(doc))
		}
		w.push(set)
	}
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

func listingFromDoc(snap *firestore.DocumentSnapshot) market.Listing {
	data := snap.Data()
	return market.Listing{
		ID:          snap.Ref.ID,
		Name:        getString(data, "name"),
		Description: getString(data, "description"),
		Price:       getFloat(data, "price"),
		Category:    getString(data, "category"),
		UserID:      getString(data, "userId"),
	}
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return false
}

func getFloat(data map[string]interface{}, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}
