// Package errors defines the structured API error responses of the admin
// surface and the mapping from domain errors to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	"github.com/shimantoislam/flash-auth/internal/license"
)

// APIError is a structured error response. It implements both error and the
// chi render.Renderer interface. The wire form is the service's uniform
// error envelope: {"status":"error","message":...} plus a machine-readable
// error code.
type APIError struct {
	StatusCode int    `json:"-"`
	Status     string `json:"status"`
	ErrorCode  string `json:"error_code,omitempty"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates an APIError.
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{StatusCode: statusCode, Status: "error", ErrorCode: errorCode, Message: message}
}

// NewWithDetails creates an APIError carrying extra detail payload.
func NewWithDetails(statusCode int, errorCode, message string, details any) *APIError {
	return &APIError{StatusCode: statusCode, Status: "error", ErrorCode: errorCode, Message: message, Details: details}
}

// Predefined errors for common cases.
var (
	ErrInvalidRequest   = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	ErrMissingParameter = New(http.StatusBadRequest, "MISSING_PARAMETER", "Required parameter is missing")
	ErrUnauthorized     = New(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	ErrSessionInvalid   = New(http.StatusUnauthorized, "SESSION_INVALID", "Invalid or expired session")
	ErrAdminDisabled    = New(http.StatusUnauthorized, "ADMIN_DISABLED", "Admin API is disabled")
	ErrInvalidPassword  = New(http.StatusUnauthorized, "INVALID_PASSWORD", "Invalid admin password")
	ErrNotFound         = New(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrRateLimited      = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")
	ErrInternalServer   = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
	ErrStorageFailure   = New(http.StatusInternalServerError, "STORAGE_FAILURE", "Failed to persist license state")
)

// ValidationError names the offending field in a validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validation creates a 400 error carrying the offending field.
func Validation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED",
		fmt.Sprintf("Invalid %s", field),
		ValidationError{Field: field, Message: message})
}

// FromDomain maps a domain error from the license package to an APIError.
func FromDomain(err error) *APIError {
	var invalid *license.InvalidInputError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &invalid):
		return Validation(invalid.Field, invalid.Reason)
	case errors.Is(err, license.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, license.ErrAlreadyExists):
		return New(http.StatusConflict, "KEY_COLLISION", "Generated key already exists, retry the request")
	case license.IsPersistenceFailure(err):
		return ErrStorageFailure
	default:
		return ErrInternalServer
	}
}
