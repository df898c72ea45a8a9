package tts

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoEngineURL is returned when the engine URL is missing.
	ErrNoEngineURL = errors.New("tts: engine URL required")

	// ErrNoProfile is returned when a synthesis request lacks a voice profile.
	ErrNoProfile = errors.New("tts: voice profile required")

	// ErrStreamClosed is returned when reading from a closed stream.
	ErrStreamClosed = errors.New("tts: stream closed")

	// ErrEngineUnavailable is returned when the engine cannot be reached.
	ErrEngineUnavailable = errors.New("tts: engine unavailable")
)

// APIError represents an error response from the synthesis engine.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the engine.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("tts: engine error %d: %s", e.StatusCode, e.Message)
}

// IsServerError returns true if this is an engine-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// ProfileError reports a failed voice-profile extraction. The cache is not
// populated for the key when extraction fails.
type ProfileError struct {
	// Key is the canonical reference-audio key.
	Key string

	// Err is the underlying extraction failure.
	Err error
}

// Error implements the error interface.
func (e *ProfileError) Error() string {
	return fmt.Sprintf("tts: profile extraction for %s: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProfileError) Unwrap() error {
	return e.Err
}
