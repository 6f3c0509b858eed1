package memory

import (
	"context"
	"testing"

	registryvector "github.com/adrianwedd/ltm-service/internal/registry/vector"
	"github.com/stretchr/testify/require"
)

func TestSearchRanksByCosineSimilarity(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "c", []registryvector.Document{
		{ID: "x", Embedding: []float32{1, 0}, Payload: map[string]any{"name": "x"}},
		{ID: "y", Embedding: []float32{0, 1}},
		{ID: "z", Embedding: []float32{0.9, 0.1}},
	}))

	results, err := s.Search(ctx, "c", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "x", results[0].ID)
	require.Equal(t, "z", results[1].ID)
	require.InDelta(t, 1.0, results[0].Score, 1e-9)
	require.Equal(t, "x", results[0].Payload["name"])
}

func TestSearchEmptyCollection(t *testing.T) {
	s := New()
	results, err := s.Search(context.Background(), "missing", []float32{1}, 5)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestUpsertReplacesDocument(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "c", []registryvector.Document{{ID: "x", Embedding: []float32{1, 0}}}))
	require.NoError(t, s.Upsert(ctx, "c", []registryvector.Document{{ID: "x", Embedding: []float32{0, 1}}}))

	docs, err := s.Scroll(ctx, "c")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, []float32{0, 1}, docs[0].Embedding)
}

func TestDeleteIgnoresUnknownIDs(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "c", []registryvector.Document{{ID: "x", Embedding: []float32{1}}}))
	require.NoError(t, s.Delete(ctx, "c", []string{"x", "nope"}))

	docs, err := s.Scroll(ctx, "c")
	require.NoError(t, err)
	require.Empty(t, docs)
}
