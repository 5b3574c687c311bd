// Package apperror defines the error taxonomy shared by every layer.
//
// Services return these; the HTTP layer maps them to status codes. Each
// constructor wraps one of the sentinel errors so callers can test with
// errors.Is regardless of how many times the error was wrapped on the way up.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrOrphaned marks a timeline entry or bookmark whose target is gone.
	// Readers skip such entries; it never reaches a client.
	ErrOrphaned = errors.New("orphaned entry")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource string, id any) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %v", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports that a unique field is already taken, e.g. a username.
func Conflict(field, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned for failed logins. The message never says which
// of username or password was wrong.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Orphaned reports a timeline entry or bookmark that resolves to nothing.
func Orphaned(kind string, entryID int64) *AppError {
	return &AppError{
		Err:     ErrOrphaned,
		Message: fmt.Sprintf("%s entry %d has no live target", kind, entryID),
	}
}
