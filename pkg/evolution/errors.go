package evolution

import "errors"

// Delivery failures are split in two: the API could not be reached, or it
// answered and refused the message. Both are retryable by the caller.
var (
	ErrUnavailable = errors.New("messaging api unavailable")
	ErrRejected    = errors.New("messaging api rejected request")
	ErrTimeout     = errors.New("messaging api request timeout")
	ErrCircuitOpen = errors.New("messaging api circuit breaker is open")

	ErrInvalidInstance = errors.New("invalid messaging instance")
	ErrInvalidMessage  = errors.New("invalid message")
)
