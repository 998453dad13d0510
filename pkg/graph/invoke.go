package graph

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"arc-framework/sherlock/pkg/models"
)

// fallbackResponse covers the state-machine edge where the machine halts
// without a final response. No legal walk produces it; it exists so callers
// never see an empty reply.
const fallbackResponse = "No response generated."

// Invoke runs one request through the pipeline and persists the exchange.
//
// The returned error is nil on success, *GracefulError when retries were
// exhausted (reply is the apology, message counts as processed), and a plain
// error only when the machine itself broke. Memory saves are best effort:
// a save failure is logged and the reply still returned, and a failed
// human-turn save skips the assistant-turn save to keep the stores pairwise
// consistent.
func (g *Graph) Invoke(ctx context.Context, userID, text string) (string, error) {
	ctx, span := g.tracer.Start(ctx, "graph.invoke", trace.WithAttributes(
		attribute.String("user_id", userID),
	))
	defer span.End()

	if g.contentTracing {
		span.SetAttributes(attribute.String("request.text", text))
	}

	s := newState(userID, text)

	if err := g.run(ctx, s); err != nil {
		err = fmt.Errorf("graph invocation failed: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	response := s.FinalResponse
	if !s.FinalSet {
		response = fallbackResponse
	}

	span.SetAttributes(
		attribute.Int("error_count", s.ErrorCount),
		attribute.Bool("graceful_failure", s.IsError),
		attribute.Int("context.chunks", len(s.Context)),
	)
	if g.contentTracing {
		span.SetAttributes(attribute.String("response.text", response))
	}

	if err := g.memory.Save(ctx, userID, models.RoleHuman, text); err != nil {
		slog.WarnContext(ctx, "saving human turn failed, skipping assistant turn",
			"user_id", userID, "error", err)
	} else if err := g.memory.Save(ctx, userID, models.RoleAI, response); err != nil {
		slog.WarnContext(ctx, "saving assistant turn failed",
			"user_id", userID, "error", err)
	}

	if s.IsError {
		span.SetStatus(codes.Error, "retries exhausted")
		return response, &GracefulError{Message: response}
	}

	span.SetStatus(codes.Ok, "")
	return response, nil
}
