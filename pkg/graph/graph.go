// Package graph implements the bounded-retry reasoning pipeline: a
// three-node state machine (retrieve_context, generate_response,
// error_handler) whose routing is a pure function of the state. Each node is
// a method closed over the memory and model handles; the node and router
// tables are assembled once at construction.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"arc-framework/sherlock/pkg/models"
	"arc-framework/sherlock/pkg/telemetry"
)

// MaxRetries bounds the number of failed attempts before the pipeline gives
// up and produces the apology.
const MaxRetries = 3

// Node names. The empty string is the terminal marker.
const (
	nodeRetrieveContext  = "retrieve_context"
	nodeGenerateResponse = "generate_response"
	nodeErrorHandler     = "error_handler"
	nodeEnd              = ""
)

// maxSteps is a defensive bound on machine iterations. The longest legal
// walk alternates error_handler and generate_response after retrieval,
// capped by MaxRetries.
const maxSteps = 3*MaxRetries + 2

const systemPromptFormat = "You are Sherlock, an analytical reasoning assistant. " +
	"Use the following conversation context to inform your reply.\n\nContext:\n%s"

// Memory is the slice of the dual-store memory the pipeline consumes.
type Memory interface {
	Search(ctx context.Context, userID, query string) ([]string, error)
	Save(ctx context.Context, userID string, role models.Role, content string) error
}

// ChatModel produces a reply for a role-tagged prompt.
type ChatModel interface {
	Generate(ctx context.Context, prompt []models.Message) (string, error)
}

type nodeFunc func(ctx context.Context, s *State)

type routerFunc func(s *State) string

// Graph is the compiled pipeline. It owns nothing durable; every Invoke
// builds a fresh State, so one Graph serves all ingresses concurrently.
type Graph struct {
	memory         Memory
	model          ChatModel
	metrics        *telemetry.Metrics
	tracer         trace.Tracer
	contentTracing bool

	nodes   map[string]nodeFunc
	routers map[string]routerFunc
}

// New compiles the pipeline over the given collaborators. metrics may be nil
// in tests.
func New(memory Memory, model ChatModel, metrics *telemetry.Metrics, contentTracing bool) *Graph {
	g := &Graph{
		memory:         memory,
		model:          model,
		metrics:        metrics,
		tracer:         otel.Tracer("arc-sherlock"),
		contentTracing: contentTracing,
	}

	g.nodes = map[string]nodeFunc{
		nodeRetrieveContext:  g.retrieveContext,
		nodeGenerateResponse: g.generateResponse,
		nodeErrorHandler:     g.errorHandler,
	}
	g.routers = map[string]routerFunc{
		nodeRetrieveContext:  routeAfterRetrieve,
		nodeGenerateResponse: routeAfterGenerate,
		nodeErrorHandler:     routeAfterErrorHandler,
	}

	return g
}

// retrieveContext looks up prior-turn snippets for the last message. It
// never fails the machine: an error empties the context and bumps
// ErrorCount so the router diverts to the error handler.
func (g *Graph) retrieveContext(ctx context.Context, s *State) {
	query := ""
	if n := len(s.Messages); n > 0 {
		query = s.Messages[n-1].Content
	}

	hits, err := g.memory.Search(ctx, s.UserID, query)
	if err != nil {
		slog.WarnContext(ctx, "context retrieval failed", "user_id", s.UserID, "error", err)
		s.Context = nil
		s.ErrorCount++
		return
	}

	s.Context = hits
	if g.metrics != nil {
		g.metrics.RecordContextSize(ctx, telemetry.TransportFromContext(ctx), len(hits))
	}
}

// generateResponse builds the prompt (system message with the context block,
// then the full message history) and asks the model. On failure it leaves
// FinalSet unset so the router diverts to the error handler.
func (g *Graph) generateResponse(ctx context.Context, s *State) {
	contextText := "No prior context."
	if len(s.Context) > 0 {
		contextText = strings.Join(s.Context, "\n")
	}

	prompt := make([]models.Message, 0, len(s.Messages)+1)
	prompt = append(prompt, models.Message{
		Role:    models.RoleSystem,
		Content: fmt.Sprintf(systemPromptFormat, contextText),
	})
	prompt = append(prompt, s.Messages...)

	text, err := g.model.Generate(ctx, prompt)
	if err != nil {
		slog.WarnContext(ctx, "response generation failed",
			"user_id", s.UserID, "attempt", s.ErrorCount+1, "error", err)
		return
	}

	s.Messages = append(s.Messages, models.AIMessage(text))
	s.FinalResponse = text
	s.FinalSet = true
	s.ErrorCount = 0
	s.IsError = false
}

// errorHandler counts the failed attempt. While retries remain it clears
// IsError so the router re-dispatches generation; once exhausted it writes
// the fixed apology and marks the terminal graceful-failure state.
func (g *Graph) errorHandler(ctx context.Context, s *State) {
	s.ErrorCount++
	if s.ErrorCount < MaxRetries {
		s.IsError = false
		return
	}

	apology := fmt.Sprintf(
		"I'm unable to process your request at the moment (retried %d times). Please try again later.",
		MaxRetries)

	s.Messages = append(s.Messages, models.AIMessage(apology))
	s.FinalResponse = apology
	s.FinalSet = true
	s.IsError = true
}

func routeAfterRetrieve(s *State) string {
	if s.ErrorCount > 0 {
		return nodeErrorHandler
	}
	return nodeGenerateResponse
}

func routeAfterGenerate(s *State) string {
	if s.FinalSet {
		return nodeEnd
	}
	return nodeErrorHandler
}

func routeAfterErrorHandler(s *State) string {
	if s.ErrorCount < MaxRetries && !s.FinalSet {
		return nodeGenerateResponse
	}
	return nodeEnd
}

// run drives the machine from retrieve_context to a terminal state.
func (g *Graph) run(ctx context.Context, s *State) error {
	current := nodeRetrieveContext
	for steps := 0; current != nodeEnd; steps++ {
		if steps >= maxSteps {
			return fmt.Errorf("state machine exceeded %d steps at node %q", maxSteps, current)
		}

		node, ok := g.nodes[current]
		if !ok {
			return fmt.Errorf("unknown node %q", current)
		}
		node(ctx, s)

		current = g.routers[current](s)
	}
	return nil
}
