// Package apperror defines the domain errors shared by every layer of the
// gateway. Stores, providers and the reconciler wrap one of the sentinels
// below; the HTTP layer maps them to status codes and flash messages.
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

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a uniqueness violation on field (e.g. "google_id").
// The reconciler treats it as retryable.
func Conflict(resource, field string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict on %s", resource, field),
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

// ProviderAuthFailed reports that an OAuth exchange did not yield a usable
// token or profile. No store interaction happens after this error.
func ProviderAuthFailed(provider string, cause error) *AppError {
	if cause == nil {
		return &AppError{
			Err:     ErrUnauthorized,
			Message: fmt.Sprintf("%s authorization failed", provider),
		}
	}
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrUnauthorized, cause),
		Message: fmt.Sprintf("%s authorization failed: %v", provider, cause),
	}
}
