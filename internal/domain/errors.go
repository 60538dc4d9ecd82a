package domain

import "errors"

// Core transition failures. Handlers map these to HTTP statuses; services
// wrap them with fmt.Errorf("...: %w", ...) so callers can errors.Is.
var (
	// ErrConflict means a precondition failed: the bid or auction is not in
	// the state the transition requires (already resolved, auction ended,
	// concurrent writer won the version check).
	ErrConflict = errors.New("conflict: resource not in expected state")

	// ErrInvalidBid means the bid amount is below current_price + min_increment
	// or the request is otherwise not placeable.
	ErrInvalidBid = errors.New("invalid bid")

	// ErrNotFound means a referenced bid, auction, product or order is missing.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the caller exists but may not perform the transition
	// (wrong role, or not the auction owner).
	ErrForbidden = errors.New("forbidden")
)
