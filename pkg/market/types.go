package market

import "time"

// User is the authenticated identity as issued by the identity platform.
// The platform owns the account; other records reference the UID, never copy it.
type User struct {
	UID   string
	Email string
}

// Entitlement is the per-user premium record, keyed by UID.
// Absence of a record is equivalent to IsPremium=false.
type Entitlement struct {
	UserID           string
	Email            string
	IsPremium        bool
	StripeCustomerID string
	SubscriptionID   string
	UpdatedAt        time.Time
}

// Listing is a service offered by a user on the marketplace.
type Listing struct {
	ID          string
	Name        string
	Description string
	Price       float64
	Category    string
	// UserID is the owner UID. It is stamped from the authenticated session
	// at creation and never taken from client input.
	UserID string
}

// ListingPatch is a partial update; nil fields are left untouched.
type ListingPatch struct {
	Name        *string
	Description *string
	Price       *float64
	Category    *string
}

// IsEmpty reports whether the patch would change nothing.
func (p ListingPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.Category == nil
}

// Apply merges the patch into a listing.
func (p ListingPatch) Apply(l *Listing) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.Price != nil {
		l.Price = *p.Price
	}
	if p.Category != nil {
		l.Category = *p.Category
	}
}

// Route describes a navigation target for guard evaluation.
type Route struct {
	Path            string
	RequiresAuth    bool
	RequiresPremium bool
}

// Decision is the outcome of a guard evaluation: either allow, or deny
// with a redirect target.
type Decision struct {
	Allow    bool
	Redirect string
}
