package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Stack      string `json:"-"`
	cause      error
}

// Error implements the error interface
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the error the AppError was built from, if any.
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// WithCause records the underlying error for logging and errors.Is.
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// NewError creates a new application error
func NewError(statusCode int, code string, message string) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Stack:      string(debug.Stack()),
	}
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(code string, message string) *AppError {
	return NewError(http.StatusBadRequest, code, message)
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(code string, message string) *AppError {
	return NewError(http.StatusNotFound, code, message)
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(code string, message string) *AppError {
	return NewError(http.StatusConflict, code, message)
}

// NewPreconditionFailedError creates a 412 error for operations that need
// state the caller has not set up yet, such as a stored API key.
func NewPreconditionFailedError(code string, message string) *AppError {
	return NewError(http.StatusPreconditionFailed, code, message)
}

// NewUnprocessableError creates a 422 error for well-formed but unusable input.
func NewUnprocessableError(code string, message string) *AppError {
	return NewError(http.StatusUnprocessableEntity, code, message)
}

// NewTooManyRequestsError creates a 429 error
func NewTooManyRequestsError(code string, message string) *AppError {
	return NewError(http.StatusTooManyRequests, code, message)
}

// NewInternalServerError creates a 500 Internal Server Error
func NewInternalServerError(code string, message string) *AppError {
	return NewError(http.StatusInternalServerError, code, message)
}

// NewBadGatewayError creates a 502 error for upstream failures
func NewBadGatewayError(code string, message string) *AppError {
	return NewError(http.StatusBadGateway, code, message)
}

// Is checks if err carries an AppError with the same code as target
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == target.Code
}
