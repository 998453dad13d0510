package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

const (
	healthStatusOK       = "ok"
	healthStatusStarting = "starting"
	healthStatusDegraded = "degraded"
)

// ephemeralConnected reports the request-reply transport state; a disabled
// transport (nil handle) counts as connected so it never fails the probe.
func (s *Server) ephemeralConnected() bool {
	return s.ephemeral == nil || s.ephemeral.IsConnected()
}

// healthHandler handles GET /health.
// Shallow probe: only the ephemeral transport's connection state is checked.
// Memory stores are excluded so the orchestrator does not restart the service
// when an external store is down; /health/deep reports those.
func (s *Server) healthHandler(c *echo.Context) error {
	if !s.ephemeralConnected() {
		return c.JSON(http.StatusServiceUnavailable, &HealthResponse{
			Status:  healthStatusStarting,
			Version: s.cfg.Service.Version,
		})
	}

	return c.JSON(http.StatusOK, &HealthResponse{
		Status:  healthStatusOK,
		Version: s.cfg.Service.Version,
	})
}

// deepHealthHandler handles GET /health/deep.
// Probes both memory stores and the ephemeral transport independently;
// 200 only when every component answers.
func (s *Server) deepHealthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	components := HealthComponents{
		Health:    s.memory.HealthCheck(reqCtx),
		Ephemeral: s.ephemeralConnected(),
	}

	status := healthStatusOK
	httpStatus := http.StatusOK
	if !components.Healthy() || !components.Ephemeral {
		status = healthStatusDegraded
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &DeepHealthResponse{
		Status:     status,
		Version:    s.cfg.Service.Version,
		Components: components,
	})
}

// debugDBHandler handles GET /debug/db (dev mode only): connection pool
// statistics straight from pgx. The body is returned even when the ping
// fails so the stats are visible while the store is down.
func (s *Server) debugDBHandler(c *echo.Context) error {
	if s.dbDiag == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "database diagnostics are not available")
	}

	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status, err := s.dbDiag.Health(reqCtx)
	httpStatus := http.StatusOK
	if err != nil {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, status)
}
