package chat_errors

import "errors"

// Common errors
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrSelfAddressed   = errors.New("conversation with self not allowed")
	ErrAmbiguousTarget = errors.New("exactly one of conversation or community must be set")
	ErrChannelClosed   = errors.New("channel closed")
)
