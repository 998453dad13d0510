// Package nats implements the ephemeral request-reply ingress. Messages are
// load-balanced across replicas through a queue group; there is no
// redelivery, so every failure is surfaced to the caller in the reply (or
// silently dropped for fire-and-forget sends).
package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"arc-framework/sherlock/pkg/config"
	"arc-framework/sherlock/pkg/telemetry"
	"arc-framework/sherlock/pkg/version"
)

// Invoker runs one request through the reasoning pipeline.
type Invoker interface {
	Invoke(ctx context.Context, userID, text string) (string, error)
}

// requestPayload is the inbound message body.
type requestPayload struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// replyPayload is the outbound reply. Either Text or Error is set, never both.
type replyPayload struct {
	UserID    string `json:"user_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Handler owns the NATS connection and the queue subscription.
type Handler struct {
	cfg      config.NATSConfig
	pipeline Invoker
	metrics  *telemetry.Metrics

	conn *nats.Conn
	sub  *nats.Subscription
}

// NewHandler builds an unconnected handler; call Start to connect and
// subscribe.
func NewHandler(cfg config.NATSConfig, pipeline Invoker, metrics *telemetry.Metrics) *Handler {
	return &Handler{
		cfg:      cfg,
		pipeline: pipeline,
		metrics:  metrics,
	}
}

// Start connects to the server and joins the queue group on the configured
// subject. The client reconnects indefinitely on its own; IsConnected
// reflects the live state for the health probes.
func (h *Handler) Start(ctx context.Context) error {
	conn, err := nats.Connect(h.cfg.URL,
		nats.Name(version.Full()),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return err
	}
	h.conn = conn

	sub, err := conn.QueueSubscribe(h.cfg.Subject, h.cfg.QueueGroup, func(msg *nats.Msg) {
		go h.handle(ctx, msg)
	})
	if err != nil {
		conn.Close()
		return err
	}
	h.sub = sub

	slog.Info("NATS ingress started",
		"subject", h.cfg.Subject, "queue_group", h.cfg.QueueGroup)
	return nil
}

// handle processes one message. Replies go to msg.Reply when set; with no
// reply address the outcome is discarded. Errors never propagate past here.
func (h *Handler) handle(ctx context.Context, msg *nats.Msg) {
	ctx = telemetry.WithTransport(ctx, telemetry.TransportNATS)
	h.metrics.RecordRequest(ctx, telemetry.TransportNATS)
	start := time.Now()

	var req requestPayload
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.replyError(ctx, msg, "invalid JSON payload", start)
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Text) == "" {
		h.replyError(ctx, msg, "user_id and text are required", start)
		return
	}

	reply, err := h.pipeline.Invoke(ctx, req.UserID, req.Text)
	if err != nil {
		h.replyError(ctx, msg, err.Error(), start)
		return
	}

	latency := time.Since(start).Milliseconds()
	h.metrics.RecordLatency(ctx, telemetry.TransportNATS, latency)

	if msg.Reply == "" {
		return
	}
	h.respond(msg, &replyPayload{
		UserID:    req.UserID,
		Text:      reply,
		LatencyMS: latency,
	})
}

// replyError counts the failure and, when the caller is waiting, sends the
// error reply. Latency is deliberately not recorded on this branch.
func (h *Handler) replyError(ctx context.Context, msg *nats.Msg, errMsg string, start time.Time) {
	h.metrics.RecordError(ctx, telemetry.TransportNATS)

	if msg.Reply == "" {
		return
	}
	h.respond(msg, &replyPayload{
		Error:     errMsg,
		LatencyMS: time.Since(start).Milliseconds(),
	})
}

func (h *Handler) respond(msg *nats.Msg, payload *replyPayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal NATS reply", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Warn("Failed to send NATS reply", "reply", msg.Reply, "error", err)
	}
}

// IsConnected reports whether the connection is currently up.
func (h *Handler) IsConnected() bool {
	return h.conn != nil && h.conn.IsConnected()
}

// Close drains the subscription so in-flight handlers finish, then closes
// the connection.
func (h *Handler) Close() {
	if h.sub != nil {
		if err := h.sub.Drain(); err != nil {
			slog.Warn("Failed to drain NATS subscription", "error", err)
		}
	}
	if h.conn != nil {
		h.conn.Close()
	}
}
