package session

import "errors"

// Typed failures the API layer translates into HTTP responses. Store errors
// are wrapped and propagated as-is, never swallowed.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session already stopped")
	ErrNoResults       = errors.New("results array is required and must not be empty")
)
