package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the session instruments. A nil *Metrics records nothing.
type Metrics struct {
	replies  metric.Int64Counter
	deltas   metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetrics registers the session instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	replies, err := meter.Int64Counter("characterchat.chat.replies",
		metric.WithDescription("Chat replies by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create replies counter: %w", err)
	}

	deltas, err := meter.Int64Counter("characterchat.chat.deltas",
		metric.WithDescription("Streamed content fragments received"))
	if err != nil {
		return nil, fmt.Errorf("failed to create deltas counter: %w", err)
	}

	duration, err := meter.Float64Histogram("characterchat.chat.reply_duration",
		metric.WithDescription("Time from send to settled reply"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &Metrics{replies: replies, deltas: deltas, duration: duration}, nil
}

func (m *Metrics) record(ctx context.Context, status Status, deltas int, elapsed time.Duration) {
	if m == nil {
		return
	}
	// The flight context is already cancelled by now.
	ctx = context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	m.replies.Add(ctx, 1, attrs)
	m.deltas.Add(ctx, int64(deltas), attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
