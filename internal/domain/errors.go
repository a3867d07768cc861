package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeFeatureMismatch = "FEATURE_MISMATCH"
	ErrCodeUpstreamAuth    = "UPSTREAM_AUTH_ERROR"
	ErrCodeToken           = "TOKEN_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeInternalServer  = "INTERNAL_SERVER_ERROR"
)

// Sentinel errors used with errors.Is across package boundaries
var (
	ErrFeatureMismatch = errors.New("feature mismatch")
	ErrUpstreamAuth    = errors.New("upstream authentication failed")
	ErrToken           = errors.New("invalid token")
	ErrNotFound        = errors.New("not found")
	ErrUnknownLabel    = errors.New("unknown categorical label")
	ErrUnknownDisease  = errors.New("unknown disease")
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// FeatureMismatchError reports a canonical vector whose width differs from
// what a specific classifier was trained on
type FeatureMismatchError struct {
	Disease  string
	Expected int
	Got      int
}

// Error implements the error interface
func (e *FeatureMismatchError) Error() string {
	return fmt.Sprintf("%s: input feature mismatch, model expects %d, got %d", e.Disease, e.Expected, e.Got)
}

// Unwrap lets errors.Is match ErrFeatureMismatch
func (e *FeatureMismatchError) Unwrap() error {
	return ErrFeatureMismatch
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// HTTPStatus maps an error code to the status returned to clients
func HTTPStatus(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeUpstreamAuth:
		return http.StatusBadRequest
	case ErrCodeToken:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeFeatureMismatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// CodeFor classifies an error into one of the error codes above
func CodeFor(err error) string {
	var validationErr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return ErrCodeValidation
	case errors.Is(err, ErrFeatureMismatch):
		return ErrCodeFeatureMismatch
	case errors.Is(err, ErrUpstreamAuth):
		return ErrCodeUpstreamAuth
	case errors.Is(err, ErrToken):
		return ErrCodeToken
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownDisease):
		return ErrCodeNotFound
	default:
		return ErrCodeInternalServer
	}
}
