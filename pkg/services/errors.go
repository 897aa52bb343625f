package services

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when request validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEngineUnavailable is returned when an optional engine (OCR,
	// transcription) is not configured.
	ErrEngineUnavailable = errors.New("engine not configured")

	// ErrMalformedUpstream is returned when a provider reply cannot be
	// used as-is (empty or unparseable output).
	ErrMalformedUpstream = errors.New("malformed upstream response")
)

// ValidationError carries the failing field for client-facing messages.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NewValidationError creates a field-level validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
