package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arc-framework/sherlock/pkg/config"
	"arc-framework/sherlock/pkg/telemetry"
)

type fakePipeline struct {
	reply string
	err   error

	calls  int
	userID string
	text   string
}

func (p *fakePipeline) Invoke(_ context.Context, userID, text string) (string, error) {
	p.calls++
	p.userID = userID
	p.text = text
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func newTestHandler(t *testing.T, pipeline Invoker) *Handler {
	t.Helper()
	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)
	return NewHandler(config.NATSConfig{}, pipeline, metrics)
}

func TestHandleFireAndForget(t *testing.T) {
	pipeline := &fakePipeline{reply: "hi"}
	h := newTestHandler(t, pipeline)

	// No reply address: the outcome is discarded but the pipeline still runs.
	h.handle(context.Background(), &nats.Msg{
		Subject: "sherlock.request",
		Data:    []byte(`{"user_id":"u1","text":"hello"}`),
	})

	assert.Equal(t, 1, pipeline.calls)
	assert.Equal(t, "u1", pipeline.userID)
	assert.Equal(t, "hello", pipeline.text)
}

func TestHandleInvalidPayloadNeverReachesPipeline(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid JSON", `{not json`},
		{"missing user_id", `{"text":"hello"}`},
		{"blank text", `{"user_id":"u1","text":"  "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline := &fakePipeline{reply: "hi"}
			h := newTestHandler(t, pipeline)

			h.handle(context.Background(), &nats.Msg{
				Subject: "sherlock.request",
				Data:    []byte(tt.data),
			})

			assert.Zero(t, pipeline.calls)
		})
	}
}

func TestHandlePipelineErrorDoesNotPropagate(t *testing.T) {
	pipeline := &fakePipeline{err: errors.New("boom")}
	h := newTestHandler(t, pipeline)

	// Must not panic; errors are surfaced only through the reply (absent here).
	h.handle(context.Background(), &nats.Msg{
		Subject: "sherlock.request",
		Data:    []byte(`{"user_id":"u1","text":"hello"}`),
	})

	assert.Equal(t, 1, pipeline.calls)
}

func TestReplyPayloadShapes(t *testing.T) {
	t.Run("success reply has no error key", func(t *testing.T) {
		data, err := json.Marshal(&replyPayload{UserID: "u1", Text: "hi", LatencyMS: 12})
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, "hi", decoded["text"])
		assert.NotContains(t, decoded, "error")
	})

	t.Run("error reply has no text key", func(t *testing.T) {
		data, err := json.Marshal(&replyPayload{Error: "boom", LatencyMS: 12})
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, "boom", decoded["error"])
		assert.NotContains(t, decoded, "text")
		assert.NotContains(t, decoded, "user_id")
	})
}

func TestIsConnectedBeforeStart(t *testing.T) {
	h := newTestHandler(t, &fakePipeline{})
	assert.False(t, h.IsConnected())
}
