package market

import "errors"

var (
	// ErrUnauthenticated is returned when an operation requires a signed-in user
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrEntitlementNotFound is returned when a user has no entitlement record
	ErrEntitlementNotFound = errors.New("entitlement not found")

	// ErrListingNotFound is returned when a mutation target does not exist
	// or is not owned by the caller
	ErrListingNotFound = errors.New("listing not found")

	// ErrInvalidListing is returned for listings that fail validation
	ErrInvalidListing = errors.New("invalid listing")

	// ErrEmailInUse is returned when registering an already-registered email
	ErrEmailInUse = errors.New("email already registered")

	// ErrInvalidCredentials is returned for failed sign-in attempts
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotSupported is returned when an identity adapter does not support an operation
	ErrNotSupported = errors.New("operation not supported by this identity adapter")

	// ErrStorageUnavailable is returned when storage is unavailable
	ErrStorageUnavailable = errors.New("storage unavailable")
)
