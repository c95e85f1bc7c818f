package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrUnknownPolicy = errors.New("unknown intervention policy")
)
