package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/llms/ollama"

	"arc-framework/sherlock/pkg/config"
)

// Embedder maps text to a fixed-dimension vector using the configured Ollama
// embedding model. It satisfies memory.Encoder.
type Embedder struct {
	llm *ollama.LLM
	cb  *gobreaker.CircuitBreaker
	dim int
}

// NewEmbedder builds the embedding adapter. baseURL is shared with the chat
// model; the embedding model itself is configured separately.
func NewEmbedder(cfg config.EmbeddingConfig, baseURL string) (*Embedder, error) {
	model, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(baseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ollama embedding client: %w", err)
	}

	return &Embedder{
		llm: model,
		cb:  gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "ollama-embed"}),
		dim: cfg.Dim,
	}, nil
}

// Encode returns the embedding vector for text. A dimension mismatch against
// the configured collection dimension is an error: upserting a wrong-size
// vector would poison the index.
func (e *Embedder) Encode(ctx context.Context, text string) ([]float32, error) {
	out, err := e.cb.Execute(func() (any, error) {
		return e.llm.CreateEmbedding(ctx, []string{text})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, fmt.Errorf("embedding circuit open: %w", err)
		}
		return nil, fmt.Errorf("encoding text: %w", err)
	}

	vecs := out.([][]float32)
	if len(vecs) == 0 {
		return nil, errors.New("embedding model returned no vectors")
	}
	if len(vecs[0]) != e.dim {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vecs[0]), e.dim)
	}
	return vecs[0], nil
}
