package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 30.0, cfg.TTLDays)
	require.Equal(t, 0.5, cfg.ForgetAlpha)
	require.Equal(t, 0.3, cfg.ForgetBeta)
	require.Equal(t, 0.2, cfg.ForgetGamma)
	require.Equal(t, 1024, cfg.EmbedCacheSize)
	require.Equal(t, 30*time.Second, cfg.RequestTimeout())
	require.Equal(t, 5*time.Second, cfg.BackendTimeout())
	require.Equal(t, 30*24*time.Hour, cfg.TTL())
}

func TestResolvedGraphType(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "memory", cfg.ResolvedGraphType())

	cfg.Neo4jURI = "bolt://localhost:7687"
	require.Equal(t, "neo4j", cfg.ResolvedGraphType())

	cfg.GraphType = "memory"
	require.Equal(t, "memory", cfg.ResolvedGraphType())
}

func TestContextRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
	require.Nil(t, FromContext(context.Background()))
}
