package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrNoResponseBody is returned when a successful response carries no
// stream to read.
var ErrNoResponseBody = errors.New("no response body")

// HTTPError is a non-2xx answer from the gateway.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NetworkError wraps a transport failure: connection refused, reset, DNS,
// an expired deadline or a body read that broke mid-stream.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return "network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// maxErrorBody bounds how much of an error response we read.
const maxErrorBody = 64 << 10

func newHTTPError(resp *http.Response) *HTTPError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	herr := &HTTPError{
		Status:  resp.StatusCode,
		Message: fmt.Sprintf("API error: %d", resp.StatusCode),
	}
	var envelope apiErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		herr.Message = envelope.Error.Message
	}
	return herr
}
