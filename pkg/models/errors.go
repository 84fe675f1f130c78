package models

import (
	"errors"
	"fmt"
)

// ErrPoolExhausted is returned when no database connection becomes
// available within the configured acquire timeout. Callers may retry.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// ValidationError reports malformed or missing required input.
// Not retryable without changing the request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Kind EntryKind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// StorageError wraps a failure of the backing store: unreachable
// database, failed commit, scan errors. Transient from the caller's
// point of view.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsRetryable reports whether the caller may retry the operation
// unchanged. Pool exhaustion and storage failures are transient;
// validation and not-found errors are not.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrPoolExhausted) {
		return true
	}
	var se *StorageError
	return errors.As(err, &se)
}

// ErrorKind returns the wire discriminator for an error, used by the
// tool-dispatch layer when encoding failures back to the protocol caller.
func ErrorKind(err error) string {
	var ve *ValidationError
	var nf *NotFoundError
	var se *StorageError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "validation_error"
	case errors.As(err, &nf):
		return "not_found"
	case errors.Is(err, ErrPoolExhausted):
		return "pool_exhausted"
	case errors.As(err, &se):
		return "storage_failure"
	default:
		return "internal_error"
	}
}
