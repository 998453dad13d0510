// Package memory implements Sherlock's dual-store conversation memory:
// a vector index for semantic recall plus an ordered SQL history log.
// Both stores are written on every turn under the same id; the two writes
// are deliberately not atomic (see Save).
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"arc-framework/sherlock/pkg/models"
)

// Encoder maps text to an embedding vector.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// TurnPayload is the metadata stored alongside each vector point.
type TurnPayload struct {
	UserID  string
	Role    models.Role
	Content string
}

// VectorIndex is the slice of the vector store the memory needs.
type VectorIndex interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, id string, vector []float32, payload TurnPayload) error
	Search(ctx context.Context, userID string, vector []float32, limit int) ([]string, error)
	Ping(ctx context.Context) error
}

// HistoryStore is the slice of the SQL store the memory needs.
// *database.Client satisfies it.
type HistoryStore interface {
	Migrate() error
	InsertTurn(ctx context.Context, id, userID string, role models.Role, content string) error
	Ping(ctx context.Context) error
}

// Health reports the outcome of independent probes against both stores.
type Health struct {
	Vector bool `json:"vector"`
	SQL    bool `json:"sql"`
}

// Healthy reports whether both stores answered their probe.
func (h Health) Healthy() bool {
	return h.Vector && h.SQL
}

// Memory owns both store clients for the service lifetime.
type Memory struct {
	index   VectorIndex
	history HistoryStore
	encoder Encoder
	topK    int
}

// New assembles a Memory over the given stores and encoder.
func New(index VectorIndex, history HistoryStore, encoder Encoder, topK int) *Memory {
	return &Memory{
		index:   index,
		history: history,
		encoder: encoder,
		topK:    topK,
	}
}

// Init bootstraps both stores: the vector collection (cosine distance,
// configured dimension) and the SQL schema. Best-effort — a failure on either
// side logs a warning and the service starts degraded; /health/deep reports
// the true state. Calling Init twice is a no-op on the second call.
func (m *Memory) Init(ctx context.Context) {
	if err := m.index.EnsureCollection(ctx); err != nil {
		slog.WarnContext(ctx, "vector store unavailable at init, starting degraded", "error", err)
	}

	if err := m.history.Migrate(); err != nil {
		slog.WarnContext(ctx, "sql store unavailable at init, starting degraded", "error", err)
	}
}

// Search encodes query and returns up to top_k prior-turn snippets for
// user_id, best match first. An empty query short-circuits to no hits.
func (m *Memory) Search(ctx context.Context, userID, query string) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	vector, err := m.encoder.Encode(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	hits, err := m.index.Search(ctx, userID, vector, m.topK)
	if err != nil {
		return nil, fmt.Errorf("searching vector index: %w", err)
	}
	return hits, nil
}

// Save persists one turn to both stores under a fresh id, vector-first then
// SQL. The writes are not atomic: if the process dies between them the index
// holds an unreferenced point, which is acceptable because callers treat save
// failures as non-fatal and the reply has already been produced.
func (m *Memory) Save(ctx context.Context, userID string, role models.Role, content string) error {
	vector, err := m.encoder.Encode(ctx, content)
	if err != nil {
		return fmt.Errorf("encoding content: %w", err)
	}

	id := uuid.NewString()

	if err := m.index.Upsert(ctx, id, vector, TurnPayload{
		UserID:  userID,
		Role:    role,
		Content: content,
	}); err != nil {
		return fmt.Errorf("upserting vector point: %w", err)
	}

	if err := m.history.InsertTurn(ctx, id, userID, role, content); err != nil {
		return fmt.Errorf("inserting history row: %w", err)
	}

	return nil
}

// HealthCheck probes each store independently; one probe failing never masks
// the other's result.
func (m *Memory) HealthCheck(ctx context.Context) Health {
	var h Health

	if err := m.index.Ping(ctx); err == nil {
		h.Vector = true
	}
	if err := m.history.Ping(ctx); err == nil {
		h.SQL = true
	}

	return h
}
