package core

import "errors"

// Error taxonomy shared by every layer. Callers wrap these with %w and
// match them with errors.Is.
var (
	ErrInvalidFormat = errors.New("invalid format")
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrUnrecoverable = errors.New("unrecoverable")
)
