package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arc-framework/sherlock/pkg/config"
	"arc-framework/sherlock/pkg/graph"
	"arc-framework/sherlock/pkg/memory"
	"arc-framework/sherlock/pkg/telemetry"
)

type fakePipeline struct {
	reply string
	err   error

	userID string
	text   string
}

func (p *fakePipeline) Invoke(_ context.Context, userID, text string) (string, error) {
	p.userID = userID
	p.text = text
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

type fakeMemory struct {
	health memory.Health
}

func (m *fakeMemory) HealthCheck(context.Context) memory.Health { return m.health }

type fakeEphemeral struct {
	connected bool
}

func (e *fakeEphemeral) IsConnected() bool { return e.connected }

func newTestServer(t *testing.T, pipeline Invoker, mem HealthChecker, eph Ephemeral) *Server {
	t.Helper()
	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)

	cfg := &config.Config{
		Service: config.ServiceConfig{Name: "arc-sherlock", Version: "0.1.0"},
	}
	s := NewServer(cfg, pipeline, mem, eph, metrics)
	s.SetReady(true)
	return s
}

func postChat(s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestChatHandler(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		pipeline := &fakePipeline{reply: "hi"}
		s := newTestServer(t, pipeline, &fakeMemory{}, nil)

		rec := postChat(s, `{"user_id":"u1","text":"hello"}`)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ChatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "u1", resp.UserID)
		assert.Equal(t, "hi", resp.Text)
		assert.GreaterOrEqual(t, resp.LatencyMS, int64(0))

		assert.Equal(t, "u1", pipeline.userID)
		assert.Equal(t, "hello", pipeline.text)
	})

	t.Run("empty text rejected", func(t *testing.T) {
		s := newTestServer(t, &fakePipeline{}, &fakeMemory{}, nil)

		rec := postChat(s, `{"user_id":"u1","text":"   "}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("missing user_id rejected", func(t *testing.T) {
		s := newTestServer(t, &fakePipeline{}, &fakeMemory{}, nil)

		rec := postChat(s, `{"text":"hello"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("malformed JSON rejected", func(t *testing.T) {
		s := newTestServer(t, &fakePipeline{}, &fakeMemory{}, nil)

		rec := postChat(s, `{not json`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("not ready returns 503", func(t *testing.T) {
		s := newTestServer(t, &fakePipeline{}, &fakeMemory{}, nil)
		s.SetReady(false)

		rec := postChat(s, `{"user_id":"u1","text":"hello"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("graceful failure returns 200 with apology", func(t *testing.T) {
		apology := "I'm unable to process your request at the moment (retried 3 times). Please try again later."
		pipeline := &fakePipeline{err: &graph.GracefulError{Message: apology}}
		s := newTestServer(t, pipeline, &fakeMemory{}, nil)

		rec := postChat(s, `{"user_id":"u1","text":"hello"}`)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ChatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, apology, resp.Text)
	})

	t.Run("unhandled failure returns 500", func(t *testing.T) {
		pipeline := &fakePipeline{err: errors.New("boom")}
		s := newTestServer(t, pipeline, &fakeMemory{}, nil)

		rec := postChat(s, `{"user_id":"u1","text":"hello"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "boom")
	})
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, &fakePipeline{reply: "hi"}, &fakeMemory{}, nil)

	rec := postChat(s, `{"user_id":"u1","text":"hello"}`)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
