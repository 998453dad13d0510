package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"arc-framework/sherlock/pkg/graph"
	"arc-framework/sherlock/pkg/telemetry"
)

// chatHandler handles POST /chat.
//
// Graceful failure (retries exhausted inside the pipeline) is still a 200:
// the apology is the reply. Only a crash in the machine itself maps to 500.
func (s *Server) chatHandler(c *echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if msg := req.Validate(); msg != "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, msg)
	}

	if !s.ready.Load() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service is not ready")
	}

	ctx := telemetry.WithTransport(c.Request().Context(), telemetry.TransportHTTP)
	s.metrics.RecordRequest(ctx, telemetry.TransportHTTP)
	start := time.Now()

	reply, err := s.pipeline.Invoke(ctx, req.UserID, req.Text)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		if graceful, ok := graph.AsGraceful(err); ok {
			s.metrics.RecordLatency(ctx, telemetry.TransportHTTP, latency)
			s.metrics.RecordError(ctx, telemetry.TransportHTTP)
			return c.JSON(http.StatusOK, &ChatResponse{
				UserID:    req.UserID,
				Text:      graceful.Message,
				LatencyMS: latency,
			})
		}
		s.metrics.RecordError(ctx, telemetry.TransportHTTP)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	s.metrics.RecordLatency(ctx, telemetry.TransportHTTP, latency)
	return c.JSON(http.StatusOK, &ChatResponse{
		UserID:    req.UserID,
		Text:      reply,
		LatencyMS: latency,
	})
}
