package telemetry

import "context"

type transportKey struct{}

// WithTransport tags ctx with the ingress transport name. Ingresses set this
// before invoking the pipeline so that instruments recorded deep inside it
// (e.g. context size) carry the right transport label.
func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, transportKey{}, transport)
}

// TransportFromContext returns the transport name set by WithTransport, or
// "unknown" when the context is untagged.
func TransportFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(transportKey{}).(string); ok && t != "" {
		return t
	}
	return "unknown"
}
