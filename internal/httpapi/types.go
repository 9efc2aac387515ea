package httpapi

import "github.com/servilista/servilista/pkg/market"

// registerRequest is the account-creation payload.
type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type registerResponse struct {
	UID string `json:"uid"`
}

// loginRequest is the password sign-in payload. Identity platforms that
// sign in client-side reject this endpoint with 501.
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string `json:"token"`
	UID   string `json:"uid"`
}

// listingRequest is the create payload. The owner is never taken from the
// client; it is stamped from the verified session.
type listingRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Price       float64 `json:"price" validate:"gte=0"`
	Category    string  `json:"category"`
}

// listingPatchRequest is the partial-update payload; absent fields are
// left untouched.
type listingPatchRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	Category    *string  `json:"category,omitempty"`
}

func (r listingPatchRequest) toPatch() market.ListingPatch {
	return market.ListingPatch{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Category:    r.Category,
	}
}

// priceRequest is the premium-gated price mutation payload.
type priceRequest struct {
	Price float64 `json:"price" validate:"gte=0"`
}

type listingResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Category    string  `json:"category,omitempty"`
	UserID      string  `json:"userId"`
}

func toListingResponse(l market.Listing) listingResponse {
	return listingResponse{
		ID:          l.ID,
		Name:        l.Name,
		Description: l.Description,
		Price:       l.Price,
		Category:    l.Category,
		UserID:      l.UserID,
	}
}

func toListingResponses(ls []market.Listing) []listingResponse {
	out := make([]listingResponse, 0, len(ls))
	for _, l := range ls {
		out = append(out, toListingResponse(l))
	}
	return out
}

type createResponse struct {
	ID string `json:"id"`
}

type checkoutResponse struct {
	SessionID string `json:"sessionId"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}
