package apperror

import "net/http"

// AppError is a custom error type that includes an HTTP status code and an optional internal error code.
type AppError struct {
	Code    int    // HTTP Status Code (e.g., 400, 404)
	Message string // User-facing error message
	Err     error  // The underlying error, if any (not exposed to user)
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with a status code and message.
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new AppError wrapping an existing error.
func Wrap(err error, code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Validation creates a 400 error for malformed input.
func Validation(message string) *AppError {
	return New(http.StatusBadRequest, message)
}

// NotFound creates a 404 error for unknown ids or references.
func NotFound(message string) *AppError {
	return New(http.StatusNotFound, message)
}

// Conflict creates a 409 error for slots already held or booked.
func Conflict(message string) *AppError {
	return New(http.StatusConflict, message)
}

// Unauthorized creates a 401 error for signature or token mismatches.
func Unauthorized(message string) *AppError {
	return New(http.StatusUnauthorized, message)
}

// Upstream creates a 502 error wrapping a calendar or payment provider failure.
func Upstream(err error, message string) *AppError {
	return Wrap(err, http.StatusBadGateway, message)
}
