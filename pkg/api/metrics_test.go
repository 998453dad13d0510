package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"arc-framework/sherlock/pkg/config"
	"arc-framework/sherlock/pkg/graph"
	"arc-framework/sherlock/pkg/telemetry"
)

// newMeteredServer builds a server whose instruments report into a manual
// reader, so tests can assert exactly what each request recorded.
func newMeteredServer(t *testing.T, pipeline Invoker) (*Server, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(mp)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		_ = mp.Shutdown(context.Background())
	})

	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)

	s := NewServer(&config.Config{}, pipeline, &fakeMemory{}, nil, metrics)
	s.SetReady(true)
	return s, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

// counterValue sums the data points of an int64 counter matching attrs.
// A metric that was never recorded counts as zero.
func counterValue(t *testing.T, rm *metricdata.ResourceMetrics, name string, attrs attribute.Set) int64 {
	t.Helper()
	m, ok := findMetric(rm, name)
	if !ok {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", name)

	var total int64
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&attrs) {
			total += dp.Value
		}
	}
	return total
}

// histogramCount sums the sample counts of an int64 histogram matching attrs.
func histogramCount(t *testing.T, rm *metricdata.ResourceMetrics, name string, attrs attribute.Set) uint64 {
	t.Helper()
	m, ok := findMetric(rm, name)
	if !ok {
		return 0
	}
	hist, ok := m.Data.(metricdata.Histogram[int64])
	require.True(t, ok, "metric %s is not an int64 histogram", name)

	var count uint64
	for _, dp := range hist.DataPoints {
		if dp.Attributes.Equals(&attrs) {
			count += dp.Count
		}
	}
	return count
}

func TestChatHandlerMetrics(t *testing.T) {
	httpAttrs := attribute.NewSet(attribute.String("transport", "http"))

	t.Run("graceful failure increments errors_total exactly once", func(t *testing.T) {
		pipeline := &fakePipeline{err: &graph.GracefulError{Message: "apology"}}
		s, reader := newMeteredServer(t, pipeline)

		rec := postChat(s, `{"user_id":"u1","text":"hello"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		rm := collect(t, reader)
		assert.Equal(t, int64(1), counterValue(t, rm, "sherlock.errors.total", httpAttrs))
		assert.Equal(t, int64(1), counterValue(t, rm, "sherlock.requests.total", httpAttrs))
		assert.Equal(t, uint64(1), histogramCount(t, rm, "sherlock.latency", httpAttrs))
	})

	t.Run("success records request and latency, no error", func(t *testing.T) {
		s, reader := newMeteredServer(t, &fakePipeline{reply: "hi"})

		rec := postChat(s, `{"user_id":"u1","text":"hello"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		rm := collect(t, reader)
		assert.Zero(t, counterValue(t, rm, "sherlock.errors.total", httpAttrs))
		assert.Equal(t, int64(1), counterValue(t, rm, "sherlock.requests.total", httpAttrs))
		assert.Equal(t, uint64(1), histogramCount(t, rm, "sherlock.latency", httpAttrs))
	})

	t.Run("unhandled failure increments errors without latency", func(t *testing.T) {
		s, reader := newMeteredServer(t, &fakePipeline{err: assert.AnError})

		rec := postChat(s, `{"user_id":"u1","text":"hello"}`)
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		rm := collect(t, reader)
		assert.Equal(t, int64(1), counterValue(t, rm, "sherlock.errors.total", httpAttrs))
		assert.Equal(t, int64(1), counterValue(t, rm, "sherlock.requests.total", httpAttrs))
		assert.Zero(t, histogramCount(t, rm, "sherlock.latency", httpAttrs))
	})

	t.Run("validation failure records nothing", func(t *testing.T) {
		s, reader := newMeteredServer(t, &fakePipeline{})

		rec := postChat(s, `{"user_id":"u1","text":"  "}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		rm := collect(t, reader)
		assert.Zero(t, counterValue(t, rm, "sherlock.requests.total", httpAttrs))
		assert.Zero(t, counterValue(t, rm, "sherlock.errors.total", httpAttrs))
	})
}
