package handler

// Every error response has the same shape:
//
//	{"error": "conflict", "message": "The following fields already exist: username", "fields": ["username"]}
//
// Success responses carry "success": true next to their payload.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/friendship-plus/internal/apperror"
	"github.com/sakif/friendship-plus/internal/auth"
)

// maxJSONBody caps plain JSON request bodies.
const maxJSONBody = 1 << 20

// ErrorResponse is the standard error format returned by all endpoints.
type ErrorResponse struct {
	Error   string   `json:"error"`            // Machine-readable error type (e.g., "not_found")
	Message string   `json:"message"`          // Human-readable description
	Field   string   `json:"field,omitempty"`  // Offending input field, if any
	Fields  []string `json:"fields,omitempty"` // Every conflicting field
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status. Anything that is not
// an *apperror.AppError is a storage or programming failure: the client
// gets a generic 500 and the detail goes to the log only.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrConflict):
			// Duplicate identity fields are a client mistake, reported as 400.
			status = http.StatusBadRequest
			errorType = "conflict"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrTooLarge):
			status = http.StatusRequestEntityTooLarge
			errorType = "too_large"
		}

		if status == http.StatusInternalServerError {
			logger.Error("unmapped application error", slog.String("error", err.Error()))
			writeInternal(w)
			return
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
			Field:   appErr.Field,
			Fields:  appErr.Fields,
		})
		return
	}

	logger.Error("request failed", slog.String("error", err.Error()))
	writeInternal(w)
}

func writeInternal(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON body into dst. An empty body decodes as {} so the
// service reports which required field is missing.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperror.TooLarge("body", tooBig.Limit)
		}
		if isFieldTypeError(err, "age") {
			return apperror.ValidationFailed("age", "Invalid age")
		}
		return apperror.ValidationFailed("", "Invalid JSON body")
	}
	return nil
}

// isFieldTypeError reports whether err is a JSON type mismatch on field.
// The decoder names the full path (e.g. "ProfileInput.age" for an embedded
// struct), so only the last segment is compared.
func isFieldTypeError(err error, field string) bool {
	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &typeErr) {
		return false
	}
	path := typeErr.Field
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}
	return path == field
}

// actorID returns the authenticated user ID placed in the context by
// auth.RequireAuth.
func actorID(r *http.Request) (string, error) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return "", apperror.Unauthorized("authentication required")
	}
	return id, nil
}
