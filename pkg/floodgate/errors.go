package floodgate

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidSource is returned when the source identifier is empty or malformed
	ErrInvalidSource = errors.New("source identifier cannot be empty")

	// ErrInvalidDuration is returned when a ban or penalty duration is not positive
	ErrInvalidDuration = errors.New("duration must be positive")

	// ErrKeyExtractionFailed is returned when source extraction from a request fails
	ErrKeyExtractionFailed = errors.New("failed to extract source from request")

	// ErrUnknownSource is returned when an operation references a source with no recorded state
	ErrUnknownSource = errors.New("no state recorded for source")
)
