package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"characterchat/backend/pkg/logger"
	"characterchat/backend/pkg/resilience"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GatewayConfig describes the OpenAI-compatible completion endpoint.
type GatewayConfig struct {
	BaseURL string
	Model   string
	// SiteURL and Title are sent as HTTP-Referer and X-Title for attribution.
	SiteURL string
	Title   string
	// Timeout bounds a whole request including the stream; zero means none.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Gateway streams chat completions from the configured endpoint.
type Gateway struct {
	baseURL    string
	model      string
	siteURL    string
	title      string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	log        *logger.Logger
	tracer     trace.Tracer
}

// NewGateway creates a gateway client. breaker may be nil.
func NewGateway(cfg GatewayConfig, breaker *resilience.CircuitBreaker, log *logger.Logger) *Gateway {
	if cfg.HTTPClient == nil {
		// No client timeout: streams stay open as long as tokens arrive.
		cfg.HTTPClient = &http.Client{}
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Gateway{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		siteURL:    cfg.SiteURL,
		title:      cfg.Title,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
		breaker:    breaker,
		log:        log.WithComponent("gateway"),
		tracer:     otel.Tracer("characterchat/ai"),
	}
}

// Model returns the model id sent with every request.
func (g *Gateway) Model() string {
	return g.model
}

// StreamChat posts messages with stream enabled and calls onDelta with each
// content fragment as it arrives. It returns the concatenated content.
//
// Cancelling ctx yields context.Canceled. Non-2xx answers yield *HTTPError,
// transport problems and expired deadlines yield *NetworkError, and a
// successful answer without a body yields ErrNoResponseBody.
func (g *Gateway) StreamChat(ctx context.Context, apiKey string, messages []ChatMessage, onDelta func(fragment string)) (string, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.StreamChat", trace.WithAttributes(
		attribute.String("gateway.model", g.model),
		attribute.Int("gateway.messages", len(messages)),
	))
	defer span.End()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	content, err := g.stream(ctx, apiKey, messages, onDelta)
	if err != nil && !errors.Is(err, context.Canceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("gateway.content_length", len(content)))
	return content, err
}

func (g *Gateway) stream(ctx context.Context, apiKey string, messages []ChatMessage, onDelta func(string)) (string, error) {
	payload, err := json.Marshal(chatRequest{Model: g.model, Messages: messages, Stream: true})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	g.setHeaders(req, apiKey)

	var (
		resp      *http.Response
		statusErr *HTTPError
		cancelled bool
	)
	err = g.execute(func() error {
		r, doErr := g.httpClient.Do(req)
		if doErr != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				cancelled = true
				return nil
			}
			return doErr
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			defer r.Body.Close()
			statusErr = newHTTPError(r)
			// Only server-side failures say anything about gateway health.
			if r.StatusCode >= http.StatusInternalServerError {
				return statusErr
			}
			return nil
		}
		resp = r
		return nil
	})
	switch {
	case cancelled:
		return "", context.Canceled
	case statusErr != nil:
		g.log.Warn("Gateway rejected request", "status", statusErr.Status, "message", statusErr.Message)
		return "", statusErr
	case err != nil:
		return "", g.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.Body == nil || resp.Body == http.NoBody {
		return "", ErrNoResponseBody
	}

	var content strings.Builder
	err = DecodeStream(ctx, resp.Body, func(fragment string) {
		content.WriteString(fragment)
		onDelta(fragment)
	})
	if err != nil {
		return content.String(), g.transportError(ctx, err)
	}
	return content.String(), nil
}

func (g *Gateway) execute(fn func() error) error {
	if g.breaker == nil {
		return fn()
	}
	return g.breaker.Execute(fn)
}

// transportError maps a failed round trip or body read onto the taxonomy.
func (g *Gateway) transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return context.Canceled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &NetworkError{Err: context.DeadlineExceeded}
	default:
		g.log.Warn("Gateway transport failure", "error", err.Error())
		return &NetworkError{Err: err}
	}
}

func (g *Gateway) setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if g.siteURL != "" {
		req.Header.Set("HTTP-Referer", g.siteURL)
	}
	if g.title != "" {
		req.Header.Set("X-Title", g.title)
	}
}
