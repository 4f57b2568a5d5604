package dto

import (
	"net/http"

	"github.com/eshaffer321/propledger/internal/domain/reconcile"
)

// APIError represents a structured error response.
// All error responses from the API use this format for consistency.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Common error codes. Domain failures use the reconcile error codes.
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeInternalError = "internal_error"
	ErrCodeValidation    = "validation_error"
)

// NewAPIError creates a new APIError with the given code and message.
func NewAPIError(code, message string) APIError {
	return APIError{
		Code:    code,
		Message: message,
	}
}

// NotFoundError creates a not found error response.
func NotFoundError(resource string) APIError {
	return NewAPIError(ErrCodeNotFound, resource+" not found")
}

// BadRequestError creates a bad request error response.
func BadRequestError(message string) APIError {
	return NewAPIError(ErrCodeBadRequest, message)
}

// InternalError creates an internal server error response.
func InternalError() APIError {
	return NewAPIError(ErrCodeInternalError, "an internal error occurred")
}

// ValidationError creates a validation error response.
func ValidationError(message string) APIError {
	return NewAPIError(ErrCodeValidation, message)
}

// FromDomainError converts a reconcile error into a response and its status.
func FromDomainError(err *reconcile.Error) (int, APIError) {
	return StatusForCode(err.Code), APIError{Code: err.Code, Message: err.Message, Details: err.Details}
}

// StatusForCode maps a domain error code to an HTTP status.
func StatusForCode(code string) int {
	switch code {
	case reconcile.CodeAccountNotFound, reconcile.CodeSessionNotFound:
		return http.StatusNotFound
	case reconcile.CodeSessionClosed, reconcile.CodeSessionInProgress:
		return http.StatusConflict
	case reconcile.CodeDiagnosticsFailed, reconcile.CodeUnbalancedEntry:
		return http.StatusUnprocessableEntity
	case reconcile.CodeOrgRequired:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
