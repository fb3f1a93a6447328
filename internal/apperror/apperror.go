// Package apperror defines the domain error taxonomy shared by the service
// and handler layers.
//
// Services return *AppError values wrapping one of the sentinels below. The
// HTTP layer maps the sentinel to a status code with errors.Is, so the
// service layer never needs to know about HTTP.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrTooLarge     = errors.New("too large")
)

type AppError struct {
	Err     error    // actual error
	Message string   // Human-readable error message
	Field   string   // Optional: field causing the error
	Fields  []string // Optional: every conflicting field, in report order
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

// Conflict reports identity fields that already belong to another account.
// Callers pass the fields in the order they should be reported.
func Conflict(fields ...string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: "The following fields already exist: " + strings.Join(fields, ", "),
		Fields:  fields,
	}
}

// Unauthorized covers bad credentials and missing, invalid or revoked tokens.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
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

func TooLarge(field string, limit int64) *AppError {
	return &AppError{
		Err:     ErrTooLarge,
		Message: fmt.Sprintf("%s exceeds the %d byte limit", field, limit),
		Field:   field,
	}
}

// ConflictFields returns the conflicting field names carried by err, if any.
func ConflictFields(err error) []string {
	var appErr *AppError
	if errors.As(err, &appErr) && errors.Is(appErr.Err, ErrConflict) {
		return appErr.Fields
	}
	return nil
}
