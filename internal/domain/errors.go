package domain

import "errors"

// Common errors
var (
	ErrNotFound             = errors.New("record not found")
	ErrInvalidPayload       = errors.New("invalid payload")
	ErrNotReady             = errors.New("messaging client is not ready")
	ErrNotRegistered        = errors.New("destination is not registered on the messaging network")
	ErrTransportUnavailable = errors.New("messaging transport unavailable")
)
