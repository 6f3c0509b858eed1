package config

import (
	"context"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the LTM service.
type Config struct {
	// Server
	Port                  int
	RequestTimeoutSeconds int
	MaxBodySize           int64
	ManagementAccessLog   bool
	DrainTimeoutSeconds   int

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics.
	MetricsLabels string

	// Backend call behavior
	BackendTimeoutSeconds int

	// Forgetting
	TTLDays               float64
	ForgetAlpha           float64
	ForgetBeta            float64
	ForgetGamma           float64
	ForgetThreshold       float64
	ForgetIntervalSeconds int

	// Embedding
	EmbedType       string // "local" or "openai"
	EmbedCacheSize  int
	EmbedDimension  int // 0 uses the embedder's native dimension
	OpenAIAPIKey    string
	OpenAIModelName string
	OpenAIBaseURL   string

	// Vector store
	VectorType             string // "qdrant" or "memory"
	VectorMigrateAtStart   bool
	QdrantHost             string
	QdrantPort             int
	QdrantAPIKey           string
	QdrantUseTLS           bool
	QdrantCollectionPrefix string
	QdrantStartupTimeout   time.Duration

	// Graph store. Empty GraphType resolves to "neo4j" when Neo4jURI is
	// set and to the in-memory fallback otherwise.
	GraphType     string // "neo4j", "memory", or ""
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Key-value store
	KVType     string // "badger", "redis", or "memory"
	BadgerPath string
	RedisURL   string
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		Port:                  8080,
		RequestTimeoutSeconds: 30,
		MaxBodySize:           20 * 1024 * 1024, // 20 MiB
		DrainTimeoutSeconds:   30,
		BackendTimeoutSeconds: 5,
		TTLDays:               30,
		ForgetAlpha:           0.5,
		ForgetBeta:            0.3,
		ForgetGamma:           0.2,
		ForgetThreshold:       0,
		ForgetIntervalSeconds: 24 * 60 * 60,
		EmbedType:             "local",
		EmbedCacheSize:        1024,
		OpenAIModelName:       "text-embedding-3-small",
		OpenAIBaseURL:         "https://api.openai.com/v1",
		VectorType:            "memory",
		VectorMigrateAtStart:  true,
		QdrantHost:            "localhost",
		QdrantPort:            6334,
		QdrantCollectionPrefix: "ltm",
		QdrantStartupTimeout:  30 * time.Second,
		KVType:                "memory",
		BadgerPath:            "./data/badger",
	}
}

// ResolvedGraphType returns the effective graph backend: an explicit
// GraphType wins; otherwise neo4j when a URI is configured, else the
// in-memory fallback.
func (c *Config) ResolvedGraphType() string {
	if c.GraphType != "" {
		return c.GraphType
	}
	if c.Neo4jURI != "" {
		return "neo4j"
	}
	return "memory"
}

// RequestTimeout returns the server-wide maximum request deadline.
func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// BackendTimeout returns the per-backend-call timeout.
func (c *Config) BackendTimeout() time.Duration {
	if c.BackendTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.BackendTimeoutSeconds) * time.Second
}

// TTL returns the forgetting candidate age threshold.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.TTLDays * 24 * float64(time.Hour))
}
