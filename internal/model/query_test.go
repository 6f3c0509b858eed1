package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueryUnmarshalText(t *testing.T) {
	var q Query
	require.NoError(t, json.Unmarshal([]byte(`{"text":"what is photosynthesis"}`), &q))
	require.Equal(t, QueryText, q.Kind)
	require.Equal(t, "what is photosynthesis", q.Text)

	require.NoError(t, json.Unmarshal([]byte(`"bare string"`), &q))
	require.Equal(t, QueryText, q.Kind)
	require.Equal(t, "bare string", q.Text)
}

func TestQueryUnmarshalVector(t *testing.T) {
	var q Query
	require.NoError(t, json.Unmarshal([]byte(`{"vector":[0.1,0.2,0.3]}`), &q))
	require.Equal(t, QueryVector, q.Kind)
	require.Len(t, q.Vector, 3)

	require.NoError(t, json.Unmarshal([]byte(`[1,2]`), &q))
	require.Equal(t, QueryVector, q.Kind)
	require.Equal(t, []float32{1, 2}, q.Vector)

	err := json.Unmarshal([]byte(`{"vector":["a"]}`), &q)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestQueryUnmarshalMetadata(t *testing.T) {
	var q Query
	require.NoError(t, json.Unmarshal([]byte(`{"metadata":{"outcome":"ok"}}`), &q))
	require.Equal(t, QueryMetadata, q.Kind)
	require.Equal(t, "ok", q.Metadata["outcome"])

	// An object without a recognized wrapper key is taken whole.
	require.NoError(t, json.Unmarshal([]byte(`{"subject":"Transformer"}`), &q))
	require.Equal(t, QueryMetadata, q.Kind)
	require.Equal(t, "Transformer", q.Metadata["subject"])
}

func TestMatchesMetadata(t *testing.T) {
	fields := map[string]any{"outcome": "ok", "score": 0.9}
	require.True(t, MatchesMetadata(fields, map[string]any{"outcome": "ok"}))
	require.True(t, MatchesMetadata(fields, map[string]any{"outcome": "ok", "score": 0.9}))
	require.False(t, MatchesMetadata(fields, map[string]any{"outcome": "bad"}))
	require.False(t, MatchesMetadata(fields, map[string]any{"missing": "x"}))
	require.True(t, MatchesMetadata(fields, nil))
}

func TestNormalizeLimit(t *testing.T) {
	limit, err := NormalizeLimit(0)
	require.NoError(t, err)
	require.Equal(t, DefaultRetrieveLimit, limit)

	limit, err = NormalizeLimit(1)
	require.NoError(t, err)
	require.Equal(t, 1, limit)

	_, err = NormalizeLimit(51)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = NormalizeLimit(-1)
	require.ErrorAs(t, err, &validation)
}
