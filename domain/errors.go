package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated indicates there is no valid session for the caller.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrUnauthorized indicates the caller may not touch the requested document.
	ErrUnauthorized = errors.New("not authorized")
	// ErrValidation is wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDataLoad indicates the identity was resolved but board data could not be fetched.
	ErrDataLoad = errors.New("failed to load board data")
	// ErrNotConfirmed indicates a destructive operation was declined.
	ErrNotConfirmed = errors.New("not confirmed")
	// ErrConflict indicates the storage rejected a write because the document already exists.
	ErrConflict = errors.New("conflict")
)

// ValidationError reports a user input problem detected before any remote call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError for field.
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// RemoteError wraps a failure returned by the backend during a mutation.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *RemoteError) Unwrap() error { return e.Err }
