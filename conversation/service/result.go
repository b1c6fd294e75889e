package service

import "errors"

// Status tags the outcome of a Send or Regenerate.
type Status string

const (
	// StatusOK means the reply streamed to completion.
	StatusOK Status = "ok"
	// StatusCancelled means the user stopped the reply; no error is recorded.
	StatusCancelled Status = "cancelled"
	// StatusFailed means the request failed and the session error is set.
	StatusFailed Status = "failed"
	// StatusSkipped means the call was a no-op: blank input, a reply already
	// in flight, or nothing to regenerate.
	StatusSkipped Status = "skipped"
)

// Result is the tagged outcome of a send.
type Result struct {
	Status  Status `json:"status"`
	Content string `json:"content,omitempty"`
	Err     error  `json:"-"`
}

// Reason returns the human-readable failure message, if any.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// ErrNoCredential is returned when a session is requested before an API key
// has been stored.
var ErrNoCredential = errors.New("an API key is required before chatting")
