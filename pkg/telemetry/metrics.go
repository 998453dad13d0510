package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Transport attribute values used on every instrument.
const (
	TransportHTTP   = "http"
	TransportNATS   = "nats"
	TransportPulsar = "pulsar"
)

// Metrics bundles the OTEL instruments shared by all ingresses. Every
// instrument is labelled with a "transport" attribute; the noop meter is
// returned when no MeterProvider is installed, so a zero-config Metrics is
// always safe to use.
type Metrics struct {
	requestsTotal metric.Int64Counter
	errorsTotal   metric.Int64Counter
	latency       metric.Int64Histogram
	contextSize   metric.Int64Histogram
}

// NewMetrics creates the service instruments from the global MeterProvider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(scopeName)

	requestsTotal, err := meter.Int64Counter("sherlock.requests.total",
		metric.WithDescription("Total number of reasoning requests"))
	if err != nil {
		return nil, fmt.Errorf("creating requests counter: %w", err)
	}

	errorsTotal, err := meter.Int64Counter("sherlock.errors.total",
		metric.WithDescription("Total number of failed reasoning requests"))
	if err != nil {
		return nil, fmt.Errorf("creating errors counter: %w", err)
	}

	latency, err := meter.Int64Histogram("sherlock.latency",
		metric.WithDescription("Reasoning request latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("creating latency histogram: %w", err)
	}

	contextSize, err := meter.Int64Histogram("sherlock.context.size",
		metric.WithDescription("Number of context chunks retrieved per request"))
	if err != nil {
		return nil, fmt.Errorf("creating context size histogram: %w", err)
	}

	return &Metrics{
		requestsTotal: requestsTotal,
		errorsTotal:   errorsTotal,
		latency:       latency,
		contextSize:   contextSize,
	}, nil
}

// RecordRequest increments the request counter for the given transport.
func (m *Metrics) RecordRequest(ctx context.Context, transport string) {
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", transport)))
}

// RecordError increments the error counter for the given transport.
func (m *Metrics) RecordError(ctx context.Context, transport string) {
	m.errorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", transport)))
}

// RecordLatency records a request latency sample in milliseconds.
func (m *Metrics) RecordLatency(ctx context.Context, transport string, ms int64) {
	m.latency.Record(ctx, ms, metric.WithAttributes(attribute.String("transport", transport)))
}

// RecordContextSize records the number of retrieved context chunks.
func (m *Metrics) RecordContextSize(ctx context.Context, transport string, chunks int) {
	m.contextSize.Record(ctx, int64(chunks), metric.WithAttributes(attribute.String("transport", transport)))
}
