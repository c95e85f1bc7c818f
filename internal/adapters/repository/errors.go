package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrOpen         = errors.New("open event store failed")
	ErrInvalidField = errors.New("invalid field name")
	ErrClosed       = errors.New("event store is closed")
)
