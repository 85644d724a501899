// Package errors defines the classified error taxonomy shared by the data
// layer. A ServiceError carries a stable code, an HTTP status, and a message
// that is safe to show to an end user; everything else in the program is a
// plain error.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure.
type Code string

const (
	CodeInternal          Code = "internal_error"
	CodeNotFound          Code = "not_found"
	CodeUnauthorized      Code = "unauthorized"
	CodeForbidden         Code = "forbidden"
	CodeInvalidInput      Code = "invalid_input"
	CodeRateLimitExceeded Code = "rate_limit_exceeded"
	CodeUnavailable       Code = "service_unavailable"
	CodeTimeout           Code = "timeout"
)

// ServiceError is an error with a user-presentable message. Message is shown
// verbatim in the UI, so constructors must keep it free of internal detail.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]any
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ServiceError) Unwrap() error { return e.cause }

// UserMessage returns the display-safe message.
func (e *ServiceError) UserMessage() string { return e.Message }

// WithDetails attaches structured detail for diagnostics. Details are logged,
// never displayed.
func (e *ServiceError) WithDetails(details map[string]any) *ServiceError {
	e.Details = details
	return e
}

// WithCause records the underlying error.
func (e *ServiceError) WithCause(err error) *ServiceError {
	e.cause = err
	return e
}

func newError(code Code, status int, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status}
}

// Internal wraps an unexpected failure.
func Internal(message string) *ServiceError {
	if message == "" {
		message = "An unexpected error occurred."
	}
	return newError(CodeInternal, http.StatusInternalServerError, message)
}

// NotFound reports a missing entity.
func NotFound(entity string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s not found", entity))
}

// Unauthorized reports a failed or missing authentication.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "Authentication required."
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message)
}

// Forbidden reports an authorization failure.
func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "You do not have access to this resource."
	}
	return newError(CodeForbidden, http.StatusForbidden, message)
}

// InvalidInput reports a validation failure.
func InvalidInput(message string) *ServiceError {
	return newError(CodeInvalidInput, http.StatusBadRequest, message)
}

// RateLimitExceeded reports throttling by the backend.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimitExceeded, http.StatusTooManyRequests,
		"Too many requests. Please try again shortly.").
		WithDetails(map[string]any{"limit": limit, "window": window})
}

// Unavailable reports that the backend could not be reached.
func Unavailable(message string) *ServiceError {
	if message == "" {
		message = "Service is temporarily unavailable."
	}
	return newError(CodeUnavailable, http.StatusServiceUnavailable, message)
}

// Timeout reports a request deadline hit.
func Timeout(message string) *ServiceError {
	if message == "" {
		message = "The request timed out."
	}
	return newError(CodeTimeout, http.StatusGatewayTimeout, message)
}

// FromHTTPStatus maps a backend status code to a classified error.
func FromHTTPStatus(status int, message string) *ServiceError {
	switch status {
	case http.StatusNotFound:
		e := newError(CodeNotFound, status, "Requested item was not found.")
		if message != "" {
			e.Message = message
		}
		return e
	case http.StatusUnauthorized:
		return Unauthorized(message)
	case http.StatusForbidden:
		return Forbidden(message)
	case http.StatusBadRequest:
		if message == "" {
			message = "Invalid request."
		}
		return InvalidInput(message)
	case http.StatusTooManyRequests:
		return newError(CodeRateLimitExceeded, status, "Too many requests. Please try again shortly.")
	case http.StatusGatewayTimeout:
		return Timeout(message)
	default:
		if status >= 500 {
			return Unavailable(message)
		}
		return Internal(message)
	}
}

// GetServiceError extracts the ServiceError from err, or wraps err as an
// internal error so callers always get a classified value.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return Internal("").WithCause(err)
}

// IsNotFound reports whether err is classified as a missing entity.
func IsNotFound(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Code == CodeNotFound
}

// IsAuth reports whether err is an authentication or authorization failure.
func IsAuth(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && (se.Code == CodeUnauthorized || se.Code == CodeForbidden)
}

// IsRetryable reports whether a fetch that failed with err may be retried.
// Missing entities and auth failures will not heal on retry.
func IsRetryable(err error) bool {
	var se *ServiceError
	if !errors.As(err, &se) {
		return true
	}
	switch se.Code {
	case CodeNotFound, CodeUnauthorized, CodeForbidden, CodeInvalidInput:
		return false
	}
	return true
}
