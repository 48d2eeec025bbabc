package booking

import "errors"

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrEventStarted     = errors.New("event already started")
	ErrCapacityExceeded = errors.New("not enough capacity left")
	ErrInvalidQuantity  = errors.New("ticket count must be at least 1")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnavailable      = errors.New("booking temporarily unavailable")
)
