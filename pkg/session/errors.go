package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for the session package.
var (
	// ErrMissingServerURL indicates the avatar proxy URL was not provided.
	ErrMissingServerURL = errors.New("session: server URL is required")

	// ErrMissingAvatarID indicates the avatar identity was not provided.
	ErrMissingAvatarID = errors.New("session: avatar ID is required")

	// ErrNoSession indicates no active session exists.
	ErrNoSession = errors.New("session: no active session")

	// ErrAlreadyConnected indicates the client is already connected.
	ErrAlreadyConnected = errors.New("session: already connected")

	// ErrNotStarted indicates Connect was called before StartSession.
	ErrNotStarted = errors.New("session: session not started")
)

// AuthError indicates the token endpoint rejected the request.
// Message carries the server-provided error text.
type AuthError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("session: auth failed (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("session: auth failed (HTTP %d)", e.StatusCode)
}

// SessionStartError indicates media-room provisioning failed.
type SessionStartError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *SessionStartError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("session: start failed (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("session: start failed (HTTP %d)", e.StatusCode)
}

// IsAuthError reports whether err is a token rejection.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsSessionStartError reports whether err is a provisioning failure.
func IsSessionStartError(err error) bool {
	var startErr *SessionStartError
	return errors.As(err, &startErr)
}
