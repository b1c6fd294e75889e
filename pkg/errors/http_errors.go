package errors

import (
	stderrors "errors"
	"net/http"
)

// BadRequestWithDetails creates a 400 Bad Request error with details
func BadRequestWithDetails(code string, message string, details any) *AppError {
	return NewBadRequestError(code, message).WithDetails(details)
}

// FromError converts a standard error to an AppError
// If the error is already an AppError, it is returned as-is
// Otherwise, it is wrapped as an internal server error without leaking the
// underlying message to the client
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	return NewInternalServerError("INTERNAL_ERROR", "An unexpected error occurred").WithCause(err)
}

// GetStatusCode extracts the HTTP status code from an AppError, returns 500 if not an AppError
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// GetErrorCode extracts the error code from an AppError, returns "UNKNOWN_ERROR" if not an AppError
func GetErrorCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}
