package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationLength       ErrorCode = "validation_length_out_of_range"
	ErrCodeValidationInvalidURL   ErrorCode = "validation_invalid_url"
	ErrCodeValidationInvalidEmail ErrorCode = "validation_invalid_email"
	ErrCodeValidationFieldType    ErrorCode = "validation_invalid_field_type"
	ErrCodeValidationInvalidField ErrorCode = "validation_invalid_field"
	ErrCodeValidationBodyTooLarge ErrorCode = "validation_body_too_large"

	// Unprocessable (422)
	ErrCodeUnprocessableJSON ErrorCode = "unprocessable_invalid_json"

	// Auth (401)
	ErrCodeAuthKeyMissing ErrorCode = "auth_api_key_missing"
	ErrCodeAuthKeyInvalid ErrorCode = "auth_api_key_invalid"

	// Permission (403)
	ErrCodePermissionCSRF ErrorCode = "permission_csrf_token_invalid"

	// Limits (429)
	ErrCodeRateLimit ErrorCode = "rate_limit_exceeded"

	// Internal/Unavailable (500/503)
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUnavailableDelivery ErrorCode = "unavailable_delivery_saturated"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case c == ErrCodeValidationBodyTooLarge:
		return http.StatusRequestEntityTooLarge // 413
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "unprocessable_"):
		return http.StatusUnprocessableEntity // 422
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden // 403
	case c == ErrCodeRateLimit:
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "unavailable_"):
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the service.
// All domain and handler errors that reach the HTTP layer should be expressed
// as AppError to enable consistent error formatting and HTTP status mapping.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
