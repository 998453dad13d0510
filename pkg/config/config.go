// Package config loads the Sherlock service configuration from an optional
// YAML file overlaid with SHERLOCK_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for Sherlock.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Server    ServerConfig    `mapstructure:"server"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Pulsar    PulsarConfig    `mapstructure:"pulsar"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// DevMode mounts the /fake/* payload-generator endpoints.
	DevMode bool `mapstructure:"dev_mode"`
}

type ServiceConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// DSN renders the pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DB, c.SSLMode)
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

type NATSConfig struct {
	URL        string `mapstructure:"url"`
	Enabled    bool   `mapstructure:"enabled"`
	Subject    string `mapstructure:"subject"`
	QueueGroup string `mapstructure:"queue_group"`
}

type PulsarConfig struct {
	URL          string `mapstructure:"url"`
	Enabled      bool   `mapstructure:"enabled"`
	RequestTopic string `mapstructure:"request_topic"`
	ResultTopic  string `mapstructure:"result_topic"`
	Subscription string `mapstructure:"subscription"`
}

type LLMConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type EmbeddingConfig struct {
	Model string `mapstructure:"model"`
	Dim   int    `mapstructure:"dim"`
	TopK  int    `mapstructure:"top_k"`
}

type TelemetryConfig struct {
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPInsecure   bool   `mapstructure:"otlp_insecure"`
	TracesEnabled  bool   `mapstructure:"traces_enabled"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`

	// ContentTracing gates message bodies as span attributes. This is a
	// privacy contract: when false (the default) no user or assistant
	// content ever reaches the trace backend.
	ContentTracing bool `mapstructure:"content_tracing"`
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the SHERLOCK_ prefix (e.g. SHERLOCK_SERVER_PORT,
// SHERLOCK_PULSAR_ENABLED).
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SHERLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.Embedding.Dim <= 0 {
		return nil, fmt.Errorf("embedding.dim must be positive, got %d", cfg.Embedding.Dim)
	}
	if cfg.Embedding.TopK <= 0 {
		return nil, fmt.Errorf("embedding.top_k must be positive, got %d", cfg.Embedding.TopK)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "arc-sherlock")
	v.SetDefault("service.version", "0.1.0")

	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("postgres.host", "arc-sql-db")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "arc")
	v.SetDefault("postgres.password", "arc")
	v.SetDefault("postgres.db", "arc")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)

	v.SetDefault("qdrant.host", "arc-vector-db")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "sherlock_conversations")

	v.SetDefault("nats.url", "nats://arc-messaging:4222")
	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.subject", "sherlock.request")
	v.SetDefault("nats.queue_group", "sherlock_workers")

	v.SetDefault("pulsar.url", "pulsar://arc-streaming:6650")
	v.SetDefault("pulsar.enabled", false)
	v.SetDefault("pulsar.request_topic", "persistent://public/default/sherlock-requests")
	v.SetDefault("pulsar.result_topic", "persistent://public/default/sherlock-results")
	v.SetDefault("pulsar.subscription", "sherlock-workers")

	v.SetDefault("llm.model", "mistral:7b")
	v.SetDefault("llm.base_url", "http://localhost:11434")

	v.SetDefault("embedding.model", "all-minilm")
	v.SetDefault("embedding.dim", 384)
	v.SetDefault("embedding.top_k", 5)

	v.SetDefault("telemetry.otlp_endpoint", "arc-friday-collector:4317")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.traces_enabled", true)
	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("telemetry.content_tracing", false)

	v.SetDefault("dev_mode", false)
}
