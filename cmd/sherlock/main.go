// Sherlock reasoning service — runs the bounded-retry pipeline behind three
// ingresses (HTTP, NATS request-reply, Pulsar shared subscription) on top of
// the Qdrant + PostgreSQL dual-store memory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"arc-framework/sherlock/pkg/api"
	"arc-framework/sherlock/pkg/config"
	"arc-framework/sherlock/pkg/database"
	"arc-framework/sherlock/pkg/graph"
	"arc-framework/sherlock/pkg/llm"
	"arc-framework/sherlock/pkg/memory"
	"arc-framework/sherlock/pkg/nats"
	"arc-framework/sherlock/pkg/queue"
	"arc-framework/sherlock/pkg/telemetry"
	"arc-framework/sherlock/pkg/version"
)

func main() {
	configPath := flag.String("config", os.Getenv("SHERLOCK_CONFIG"),
		"Path to optional YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"error", err)
	}

	telemetry.ConfigureLogging(slog.LevelInfo)

	ctx := context.Background()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting Sherlock",
		"version", version.Full(),
		"port", cfg.Server.Port,
		"nats_enabled", cfg.NATS.Enabled,
		"pulsar_enabled", cfg.Pulsar.Enabled)

	// 2. Telemetry providers (non-blocking dial; collector may be down)
	provider, err := telemetry.InitProvider(ctx, cfg.Telemetry, cfg.Service.Name, cfg.Service.Version)
	if err != nil {
		slog.Error("Failed to initialise telemetry", "error", err)
		os.Exit(1)
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		slog.Error("Failed to create metrics instruments", "error", err)
		os.Exit(1)
	}

	// 3. Stores: PostgreSQL history + Qdrant vector index
	dbClient, err := database.NewClient(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("Failed to create database client", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	index, err := memory.NewQdrantIndex(cfg.Qdrant, cfg.Embedding.Dim)
	if err != nil {
		slog.Error("Failed to create qdrant client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := index.Close(); err != nil {
			slog.Error("Error closing qdrant client", "error", err)
		}
	}()

	// 4. Model adapters
	chatModel, err := llm.NewClient(cfg.LLM)
	if err != nil {
		slog.Error("Failed to create chat model client", "error", err)
		os.Exit(1)
	}

	embedder, err := llm.NewEmbedder(cfg.Embedding, cfg.LLM.BaseURL)
	if err != nil {
		slog.Error("Failed to create embedding client", "error", err)
		os.Exit(1)
	}

	// 5. Memory (best-effort init; degraded start is allowed)
	mem := memory.New(index, dbClient, embedder, cfg.Embedding.TopK)
	mem.Init(ctx)
	slog.Info("Memory initialised")

	// 6. Reasoning pipeline
	pipeline := graph.New(mem, chatModel, metrics, cfg.Telemetry.ContentTracing)

	// 7. Ephemeral ingress (request-reply)
	var natsHandler *nats.Handler
	if cfg.NATS.Enabled {
		natsHandler = nats.NewHandler(cfg.NATS, pipeline, metrics)
		if err := natsHandler.Start(ctx); err != nil {
			slog.Error("Failed to start NATS ingress", "error", err)
			os.Exit(1)
		}
	}

	// 8. Durable ingress (shared subscription)
	var pulsarConsumer *queue.Consumer
	if cfg.Pulsar.Enabled {
		pulsarConsumer = queue.NewConsumer(cfg.Pulsar, pipeline, metrics)
		if err := pulsarConsumer.Start(ctx); err != nil {
			slog.Error("Failed to start Pulsar ingress", "error", err)
			os.Exit(1)
		}
	}

	// 9. HTTP ingress (non-blocking)
	var ephemeral api.Ephemeral
	if natsHandler != nil {
		ephemeral = natsHandler
	}
	httpServer := api.NewServer(cfg, pipeline, mem, ephemeral, metrics)
	httpServer.SetHistory(dbClient)
	httpServer.SetDBDiagnostics(dbClient)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	httpServer.SetReady(true)
	slog.Info("Sherlock started successfully")

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown: stop intake first, then drain the durable
	// consumer, then close the HTTP listener and flush telemetry.
	httpServer.SetReady(false)

	if natsHandler != nil {
		natsHandler.Close()
		slog.Info("NATS ingress stopped")
	}

	if pulsarConsumer != nil {
		consumerDone := make(chan struct{})
		go func() {
			pulsarConsumer.Stop()
			close(consumerDone)
		}()

		select {
		case <-consumerDone:
			slog.Info("Pulsar ingress stopped gracefully")
		case <-time.After(cfg.Server.ShutdownTimeout):
			slog.Warn("Pulsar ingress shutdown timeout exceeded")
		}
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	telemetryCtx, telemetryCancel := context.WithTimeout(ctx, 5*time.Second)
	defer telemetryCancel()
	if err := provider.Shutdown(telemetryCtx); err != nil {
		slog.Error("Telemetry shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
