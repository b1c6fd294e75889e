package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"characterchat/backend/pkg/logger"

	openai "github.com/sashabaranov/go-openai"
)

// Messages reported by key validation.
const (
	MsgNoKey        = "No API key provided"
	MsgInvalidKey   = "Invalid API key"
	MsgNetworkError = "Network error - check your connection"
)

// KeyCheck is the outcome of probing the gateway with a credential.
type KeyCheck struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Definitive reports whether the outcome depends only on the key, so it can
// be cached.
func (k KeyCheck) Definitive() bool {
	return k.Valid || k.Error == MsgInvalidKey
}

// Prober checks credentials by listing the gateway's models.
type Prober struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewProber creates a prober for the given base URL. httpClient may be nil.
func NewProber(baseURL string, httpClient *http.Client, log *logger.Logger) *Prober {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Prober{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        log.WithComponent("probe"),
	}
}

// Probe asks the gateway whether apiKey is accepted.
func (p *Prober) Probe(ctx context.Context, apiKey string) KeyCheck {
	if strings.TrimSpace(apiKey) == "" {
		return KeyCheck{Error: MsgNoKey}
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = p.baseURL
	recorder := &statusRecorder{next: p.httpClient.Transport}
	httpClient := *p.httpClient
	httpClient.Transport = recorder
	cfg.HTTPClient = &httpClient
	client := openai.NewClientWithConfig(cfg)

	_, err := client.ListModels(ctx)
	if err == nil {
		return KeyCheck{Valid: true}
	}

	status, ok := statusOf(err)
	if !ok {
		// A body the client could not decode still carries a status.
		status, ok = recorder.status, recorder.status != 0
	}
	if !ok {
		p.log.Warn("Key probe failed", "error", err.Error())
		return KeyCheck{Error: MsgNetworkError}
	}
	switch {
	case status >= 200 && status < 300:
		return KeyCheck{Valid: true}
	case status == http.StatusUnauthorized:
		return KeyCheck{Error: MsgInvalidKey}
	}
	return KeyCheck{Error: fmt.Sprintf("API error: %d", status)}
}

// statusRecorder remembers the status of the last response it carried.
type statusRecorder struct {
	next   http.RoundTripper
	status int
}

func (r *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	next := r.next
	if next == nil {
		next = http.DefaultTransport
	}
	resp, err := next.RoundTrip(req)
	if resp != nil {
		r.status = resp.StatusCode
	}
	return resp, err
}

// statusOf extracts the HTTP status from go-openai errors.
func statusOf(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}
