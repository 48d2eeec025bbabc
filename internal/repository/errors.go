package repository

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrEventStarted      = errors.New("event already started")
	ErrStaleCallback     = errors.New("stale payment callback")
	ErrInvalidTransition = errors.New("transition not legal for current state")
	ErrUnavailable       = errors.New("store unavailable")
)
