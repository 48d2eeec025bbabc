package payment

import "errors"

var (
	ErrBookingNotFound        = errors.New("booking not found")
	ErrStaleCallback          = errors.New("callback references a settled booking with a different reference")
	ErrInconsistentTransition = errors.New("transition not legal for current payment status")
	ErrMissingReference       = errors.New("external reference required")
	ErrUnavailable            = errors.New("payment processing temporarily unavailable")
)
