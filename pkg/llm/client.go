// Package llm adapts the Ollama-hosted chat and embedding models behind the
// narrow interfaces the pipeline and memory consume. All outbound calls run
// through a circuit breaker so a dead model endpoint fails fast instead of
// piling up blocked requests.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"arc-framework/sherlock/pkg/config"
	"arc-framework/sherlock/pkg/models"
)

// Client is the chat-model adapter. It satisfies graph.ChatModel.
type Client struct {
	llm *ollama.LLM
	cb  *gobreaker.CircuitBreaker
}

// NewClient builds a chat client for the configured Ollama model. No network
// call is made at construction time; the first generation dials lazily.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	model, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ollama chat client: %w", err)
	}

	return &Client{
		llm: model,
		cb:  gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "ollama-chat"}),
	}, nil
}

// Generate sends the role-tagged prompt to the model and returns the reply
// text of the first choice.
func (c *Client) Generate(ctx context.Context, prompt []models.Message) (string, error) {
	content := make([]llms.MessageContent, 0, len(prompt))
	for _, m := range prompt {
		content = append(content, llms.TextParts(chatMessageType(m.Role), m.Content))
	}

	out, err := c.cb.Execute(func() (any, error) {
		return c.llm.GenerateContent(ctx, content)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return "", fmt.Errorf("llm circuit open: %w", err)
		}
		return "", fmt.Errorf("generating response: %w", err)
	}

	resp := out.(*llms.ContentResponse)
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// chatMessageType maps conversation roles onto langchaingo message types.
func chatMessageType(role models.Role) llms.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	case models.RoleAI:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
