// Package apperror defines the application's error taxonomy.
//
// Lower layers return these typed errors; only the HTTP handler layer maps
// them to status codes and response bodies. The sentinel errors are checked
// with errors.Is, and the *AppError wrapper carries the user-facing message.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrStorage    = errors.New("storage failure")
)

// AppError pairs a sentinel error with a human-readable message.
type AppError struct {
	Err     error  // sentinel identifying the error class
	Message string // user-facing message
	Field   string // optional: the offending input field
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// SnippetNotFound reports a missing snippet id.
func SnippetNotFound() *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: "Sorry, cannot find the requested snippet.",
	}
}

// MarkerNotFound reports a pagination marker that no longer resolves to an
// existing snippet. Deliberately a different message from SnippetNotFound:
// a stale marker is a valid reference shape pointing at nothing, and clients
// need to tell the two cases apart.
func MarkerNotFound() *AppError {
	return &AppError{
		Err: ErrNotFound,
		Message: "Sorry, cannot complete the request since `marker` " +
			"points to a nonexistent snippet.",
	}
}

// ValidationFailed reports a malformed or out-of-range input value. The
// message is expected to name the offending field.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Forbidden reports a mutating operation denied by the authorization gate.
func Forbidden() *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: "Sorry, you are not allowed to perform this operation.",
	}
}

// StorageFailed wraps a backing-store failure. Fatal for the current
// request; never retried at this level.
func StorageFailed(op string, err error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %s: %w", ErrStorage, op, err),
		Message: "Sorry, an internal error occurred.",
	}
}
