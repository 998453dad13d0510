package api

import "arc-framework/sherlock/pkg/memory"

// ChatResponse is the HTTP response for POST /chat. Text carries the reply
// on success and the apology on graceful failure.
type ChatResponse struct {
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthResponse is the HTTP response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// DeepHealthResponse is the HTTP response for GET /health/deep.
type DeepHealthResponse struct {
	Status     string           `json:"status"`
	Version    string           `json:"version"`
	Components HealthComponents `json:"components"`
}

// HealthComponents maps each dependency to its probe outcome.
type HealthComponents struct {
	memory.Health
	Ephemeral bool `json:"ephemeral"`
}
