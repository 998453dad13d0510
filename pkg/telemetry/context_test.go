package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransportContext(t *testing.T) {
	ctx := WithTransport(context.Background(), TransportPulsar)
	assert.Equal(t, TransportPulsar, TransportFromContext(ctx))
}

func TestTransportFromContextDefault(t *testing.T) {
	assert.Equal(t, "unknown", TransportFromContext(context.Background()))
}
