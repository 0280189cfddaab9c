package capture

import "errors"

// Sentinel errors for the capture package.
var (
	// ErrPermissionDenied indicates microphone access was refused.
	ErrPermissionDenied = errors.New("capture: microphone permission denied")

	// ErrMediaUnavailable indicates no capture device is available.
	ErrMediaUnavailable = errors.New("capture: no capture device available")

	// ErrNotInitialized indicates the engine was used before Initialize.
	ErrNotInitialized = errors.New("capture: engine not initialized")

	// ErrClosed indicates the engine was cleaned up.
	ErrClosed = errors.New("capture: engine closed")
)
