// Package httpapi exposes the marketplace over HTTP: registration, the
// owner-scoped service catalog, the premium-gated price mutation, checkout
// session creation, and the processor webhook.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	mw "github.com/servilista/servilista/middleware/http"
	"github.com/servilista/servilista/pkg/market"
)

const maxRequestBodyBytes = 64 * 1024

// Handler implements the HTTP API.
type Handler struct {
	config   Config
	validate *validator.Validate
}

// NewHandler creates the API handler.
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Handler{
		config:   config,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// Register creates an account and its entitlement record.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.config.Gateway.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, registerResponse{UID: user.UID})
}

// Login exchanges email/password for a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, err := h.config.Gateway.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	user, err := h.config.Gateway.Verify(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loginResponse{Token: token, UID: user.UID})
}

// ListServices returns the caller's listings.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	user, _ := mw.UserFromContext(r.Context())
	listings, err := h.config.Catalog.List(r.Context(), user)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toListingResponses(listings))
}

// CreateService persists a new listing owned by the caller.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	user, _ := mw.UserFromContext(r.Context())

	var req listingRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.config.Catalog.Create(r.Context(), user, market.Listing{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, createResponse{ID: id})
}

// UpdateService merges a partial patch into the caller's listing.
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	user, _ := mw.UserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req listingPatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.config.Catalog.Update(r.Context(), user, id, req.toPatch()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdatePrice changes only the price. The route is premium-gated by the
// guard middleware; by the time this runs the caller is entitled.
func (h *Handler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	user, _ := mw.UserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req priceRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.config.Catalog.UpdatePrice(r.Context(), user, id, req.Price); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteService removes the caller's listing. Deleting an already-absent
// id answers 204 as well.
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	user, _ := mw.UserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.config.Catalog.Delete(r.Context(), user, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout creates a subscription checkout session for the caller.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.config.Payments == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "payments not configured"})
		return
	}

	user, ok := mw.UserFromContext(r.Context())
	if !ok {
		h.writeError(w, market.ErrUnauthenticated)
		return
	}

	sessionID, err := h.config.Payments.CheckoutSession(r.Context(), user.UID, user.Email)
	if err != nil {
		h.config.Logger.Error("checkout session creation failed",
			market.F("uid", user.UID), market.Err(err))
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to create checkout session"})
		return
	}
	h.writeJSON(w, http.StatusOK, checkoutResponse{SessionID: sessionID})
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads, unmarshals and validates a JSON request body. On failure
// it writes the error response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return false
	}
	return true
}

// writeError maps domain errors onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrUnauthenticated):
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
	case errors.Is(err, market.ErrInvalidCredentials):
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
	case errors.Is(err, market.ErrEmailInUse):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: "email already registered"})
	case errors.Is(err, market.ErrInvalidListing):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, market.ErrListingNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "listing not found"})
	case errors.Is(err, market.ErrNotSupported):
		h.writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "not supported by the configured identity platform"})
	default:
		h.config.Logger.Error("request failed", market.Err(err))
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.config.Logger.Warn("response encoding failed", market.Err(err))
	}
}
