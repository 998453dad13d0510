// Package api exposes the synchronous HTTP ingress: the /chat endpoint, the
// health probes, and the dev-mode payload generators.
package api

import (
	"context"
	"net/http"
	"sync/atomic"

	echo "github.com/labstack/echo/v5"

	"arc-framework/sherlock/pkg/config"
	"arc-framework/sherlock/pkg/database"
	"arc-framework/sherlock/pkg/memory"
	"arc-framework/sherlock/pkg/models"
	"arc-framework/sherlock/pkg/telemetry"
)

// Invoker runs one request through the reasoning pipeline.
type Invoker interface {
	Invoke(ctx context.Context, userID, text string) (string, error)
}

// HealthChecker probes the dual-store memory.
type HealthChecker interface {
	HealthCheck(ctx context.Context) memory.Health
}

// Ephemeral reports the request-reply transport's connection state.
type Ephemeral interface {
	IsConnected() bool
}

// HistoryReader serves the dev-mode conversation-history endpoint.
type HistoryReader interface {
	RecentTurns(ctx context.Context, userID string, limit int) ([]models.ConversationTurn, error)
}

// DBDiagnostics serves the dev-mode pool-statistics endpoint.
type DBDiagnostics interface {
	Health(ctx context.Context) (*database.HealthStatus, error)
}

// Server is the HTTP ingress. It holds no request state; readiness is the
// only mutable field and flips once after startup wiring completes.
type Server struct {
	cfg       *config.Config
	pipeline  Invoker
	memory    HealthChecker
	ephemeral Ephemeral
	history   HistoryReader
	dbDiag    DBDiagnostics
	metrics   *telemetry.Metrics

	ready atomic.Bool

	echo       *echo.Echo
	httpServer *http.Server
}

// NewServer wires routes over the given collaborators. ephemeral may be nil
// when the request-reply transport is disabled; health probes then skip it.
func NewServer(cfg *config.Config, pipeline Invoker, mem HealthChecker, ephemeral Ephemeral, metrics *telemetry.Metrics) *Server {
	s := &Server{
		cfg:       cfg,
		pipeline:  pipeline,
		memory:    mem,
		ephemeral: ephemeral,
		metrics:   metrics,
		echo:      echo.New(),
	}

	s.echo.Use(securityHeaders())

	s.echo.POST("/chat", s.chatHandler)
	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/health/deep", s.deepHealthHandler)

	if cfg.DevMode {
		s.echo.GET("/fake/chat", s.fakeChatHandler)
		s.echo.GET("/fake/chat/batch", s.fakeChatBatchHandler)
		s.echo.GET("/history/:user_id", s.historyHandler)
		s.echo.GET("/debug/db", s.debugDBHandler)
	}

	return s
}

// SetHistory wires the dev-mode history endpoint to the SQL store.
func (s *Server) SetHistory(h HistoryReader) {
	s.history = h
}

// SetDBDiagnostics wires the dev-mode pool-statistics endpoint.
func (s *Server) SetDBDiagnostics(d DBDiagnostics) {
	s.dbDiag = d
}

// SetReady flips the readiness gate; /chat returns 503 until this is called.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start serves HTTP on addr, blocking until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.echo,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
