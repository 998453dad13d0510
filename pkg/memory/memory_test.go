package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arc-framework/sherlock/pkg/models"
)

type fakeEncoder struct {
	vector []float32
	err    error
	calls  int
}

func (e *fakeEncoder) Encode(_ context.Context, _ string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

type upsertCall struct {
	id      string
	payload TurnPayload
}

type fakeIndex struct {
	hits      []string
	searchErr error
	upsertErr error
	pingErr   error
	ensureErr error

	upserts     []upsertCall
	searchLimit int
}

func (i *fakeIndex) EnsureCollection(context.Context) error { return i.ensureErr }

func (i *fakeIndex) Upsert(_ context.Context, id string, _ []float32, payload TurnPayload) error {
	if i.upsertErr != nil {
		return i.upsertErr
	}
	i.upserts = append(i.upserts, upsertCall{id: id, payload: payload})
	return nil
}

func (i *fakeIndex) Search(_ context.Context, _ string, _ []float32, limit int) ([]string, error) {
	i.searchLimit = limit
	if i.searchErr != nil {
		return nil, i.searchErr
	}
	return i.hits, nil
}

func (i *fakeIndex) Ping(context.Context) error { return i.pingErr }

type insertCall struct {
	id      string
	userID  string
	role    models.Role
	content string
}

type fakeHistory struct {
	insertErr  error
	pingErr    error
	migrateErr error

	inserts []insertCall
}

func (h *fakeHistory) Migrate() error { return h.migrateErr }

func (h *fakeHistory) InsertTurn(_ context.Context, id, userID string, role models.Role, content string) error {
	if h.insertErr != nil {
		return h.insertErr
	}
	h.inserts = append(h.inserts, insertCall{id: id, userID: userID, role: role, content: content})
	return nil
}

func (h *fakeHistory) Ping(context.Context) error { return h.pingErr }

func TestSearchEmptyQueryShortCircuits(t *testing.T) {
	enc := &fakeEncoder{}
	m := New(&fakeIndex{}, &fakeHistory{}, enc, 5)

	hits, err := m.Search(context.Background(), "u1", "   ")
	require.NoError(t, err)
	assert.Nil(t, hits)
	assert.Zero(t, enc.calls, "encoder must not run for an empty query")
}

func TestSearchReturnsHitsCappedAtTopK(t *testing.T) {
	idx := &fakeIndex{hits: []string{"a", "b"}}
	m := New(idx, &fakeHistory{}, &fakeEncoder{vector: []float32{0.1}}, 3)

	hits, err := m.Search(context.Background(), "u1", "question")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, hits)
	assert.Equal(t, 3, idx.searchLimit)
}

func TestSearchEncoderFailure(t *testing.T) {
	m := New(&fakeIndex{}, &fakeHistory{}, &fakeEncoder{err: errors.New("model down")}, 5)

	_, err := m.Search(context.Background(), "u1", "question")
	assert.ErrorContains(t, err, "encoding query")
}

func TestSaveWritesBothStoresUnderOneID(t *testing.T) {
	idx := &fakeIndex{}
	hist := &fakeHistory{}
	m := New(idx, hist, &fakeEncoder{vector: []float32{0.1}}, 5)

	err := m.Save(context.Background(), "u1", models.RoleHuman, "hello")
	require.NoError(t, err)

	require.Len(t, idx.upserts, 1)
	require.Len(t, hist.inserts, 1)
	assert.Equal(t, idx.upserts[0].id, hist.inserts[0].id)
	assert.Equal(t, TurnPayload{UserID: "u1", Role: models.RoleHuman, Content: "hello"}, idx.upserts[0].payload)
}

func TestSaveVectorFailureSkipsSQL(t *testing.T) {
	idx := &fakeIndex{upsertErr: errors.New("qdrant down")}
	hist := &fakeHistory{}
	m := New(idx, hist, &fakeEncoder{vector: []float32{0.1}}, 5)

	err := m.Save(context.Background(), "u1", models.RoleHuman, "hello")
	assert.ErrorContains(t, err, "upserting vector point")
	assert.Empty(t, hist.inserts)
}

func TestSaveSQLFailureSurfaces(t *testing.T) {
	idx := &fakeIndex{}
	m := New(idx, &fakeHistory{insertErr: errors.New("pg down")}, &fakeEncoder{vector: []float32{0.1}}, 5)

	err := m.Save(context.Background(), "u1", models.RoleAI, "hi")
	assert.ErrorContains(t, err, "inserting history row")
	assert.Len(t, idx.upserts, 1, "vector write happens before the SQL write")
}

func TestHealthCheckProbesIndependently(t *testing.T) {
	tests := []struct {
		name    string
		vector  error
		sql     error
		want    Health
		healthy bool
	}{
		{"both up", nil, nil, Health{Vector: true, SQL: true}, true},
		{"vector down", errors.New("x"), nil, Health{Vector: false, SQL: true}, false},
		{"sql down", nil, errors.New("x"), Health{Vector: true, SQL: false}, false},
		{"both down", errors.New("x"), errors.New("x"), Health{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(&fakeIndex{pingErr: tt.vector}, &fakeHistory{pingErr: tt.sql}, &fakeEncoder{}, 5)
			got := m.HealthCheck(context.Background())
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.healthy, got.Healthy())
		})
	}
}

func TestInitToleratesStoreFailures(t *testing.T) {
	m := New(
		&fakeIndex{ensureErr: errors.New("qdrant down")},
		&fakeHistory{migrateErr: errors.New("pg down")},
		&fakeEncoder{}, 5)

	// Degraded start: Init must not panic or fail.
	m.Init(context.Background())
}
