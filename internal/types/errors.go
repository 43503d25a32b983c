package types

import "errors"

// Sentinel errors for the exchange.
var (
	// Order validation errors. All four are client-input failures and are
	// surfaced back to the originating session, never treated as faults.
	ErrInvalidQuantity      = errors.New("quantity must be a finite positive number")
	ErrUnknownSymbol        = errors.New("unknown symbol")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrInvalidSide          = errors.New("invalid order side")

	// Session errors
	ErrRateLimited     = errors.New("order rate limit exceeded")
	ErrSessionNotFound = errors.New("session not found")

	// Validation errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// RejectReason maps a rejection error to its stable wire identifier.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrUnknownSymbol):
		return "unknown_symbol"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientPosition):
		return "insufficient_position"
	case errors.Is(err, ErrInvalidSide):
		return "invalid_side"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}
