package memory

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"arc-framework/sherlock/pkg/config"
)

// QdrantIndex implements VectorIndex over the Qdrant gRPC client.
// The client is safe for concurrent use across all ingresses.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dim        uint64
}

// NewQdrantIndex connects to Qdrant. The gRPC dial is lazy; an unreachable
// server surfaces on the first operation, not here.
func NewQdrantIndex(cfg config.QdrantConfig, dim int) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	return &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dim:        uint64(dim),
	}, nil
}

// EnsureCollection creates the collection with cosine distance if it does not
// exist. Idempotent.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", q.collection, err)
	}
	if exists {
		return nil
	}

	if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.dim,
			Distance: qdrant.Distance_Cosine,
		}),
	}); err != nil {
		return fmt.Errorf("creating collection %s: %w", q.collection, err)
	}
	return nil
}

// Upsert writes one point with the turn payload.
func (q *QdrantIndex) Upsert(ctx context.Context, id string, vector []float32, payload TurnPayload) error {
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(id),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"user_id": payload.UserID,
					"role":    string(payload.Role),
					"content": payload.Content,
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upserting point %s: %w", id, err)
	}
	return nil
}

// Search returns the payload contents of the best-scoring points restricted
// to the given user_id.
func (q *QdrantIndex) Search(ctx context.Context, userID string, vector []float32, limit int) ([]string, error) {
	lim := uint64(limit)

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &lim,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("user_id", userID),
			},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", q.collection, err)
	}

	contents := make([]string, 0, len(points))
	for _, p := range points {
		if v, ok := p.Payload["content"]; ok {
			contents = append(contents, v.GetStringValue())
		}
	}
	return contents, nil
}

// Ping verifies the Qdrant server is reachable.
func (q *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// Close tears down the underlying gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
