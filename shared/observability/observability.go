// Package observability wires OpenTelemetry tracing and Prometheus metrics.
package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ShutdownFunc flushes and stops a provider.
type ShutdownFunc func(ctx context.Context) error

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
}

// SetupTracing installs a global tracer provider that writes spans to w.
// When disabled the default no-op provider stays in place.
func SetupTracing(serviceName string, enabled bool, w io.Writer) (ShutdownFunc, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize stdouttrace exporter: %w", err)
	}
	res, err := newResource(serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// SetupMetrics creates a meter provider backed by its own Prometheus
// registry and returns the handler serving it.
func SetupMetrics(serviceName string) (*metric.MeterProvider, http.Handler, error) {
	registry := prometheus.NewRegistry()
	exp, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize prometheus exporter: %w", err)
	}
	res, err := newResource(serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build resource: %w", err)
	}

	mp := metric.NewMeterProvider(
		metric.WithReader(exp),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return mp, handler, nil
}
