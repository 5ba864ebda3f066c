package services

import "errors"

// Error taxonomy shared by the dispatcher, scheduler and backend client.
// Callers classify with errors.Is; the concrete cause is wrapped with %w.
var (
	// ErrNetworkFailure is a timeout, refused connection or transport error
	ErrNetworkFailure = errors.New("network failure")

	// ErrBackendRejected is a non-2xx status or a non-success status body
	ErrBackendRejected = errors.New("backend rejected request")

	// ErrMalformedReading is a response that does not match its endpoint schema
	ErrMalformedReading = errors.New("malformed reading")

	// ErrStaleReading is a reading older than the last confirmed command of its family
	ErrStaleReading = errors.New("stale reading")

	// ErrInvalidCommand is a command rejected locally before any network call
	ErrInvalidCommand = errors.New("invalid command")

	// ErrNoGPSFix is returned when saving a location without an active fix
	ErrNoGPSFix = errors.New("no valid GPS fix")
)
