package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adrianwedd/ltm-service/internal/model"
	embedlocal "github.com/adrianwedd/ltm-service/internal/plugin/embed/local"
	kvmemory "github.com/adrianwedd/ltm-service/internal/plugin/kv/memory"
	vectormemory "github.com/adrianwedd/ltm-service/internal/plugin/vector/memory"
)

func newProceduralFixture(t *testing.T) *ProceduralMemory {
	t.Helper()
	kv := kvmemory.New()
	return NewProceduralMemory(vectormemory.New(), &embedlocal.LocalEmbedder{}, kv, NewProvenanceTracker(kv))
}

func TestStoreTextRepresentation(t *testing.T) {
	m := newProceduralFixture(t)
	ctx := context.Background()

	id, err := m.Store(ctx, SkillInput{
		Policy:   map[string]any{"steps": []any{"search", "summarize"}},
		Text:     "web research procedure",
		Metadata: map[string]any{"domain": "research"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	skills, err := m.VectorQuery(ctx, model.Query{Kind: model.QueryText, Text: "research procedure"}, 1)
	require.NoError(t, err)
	require.Len(t, skills, 1)
	require.Equal(t, id, skills[0].ID)
	require.Len(t, skills[0].Embedding, m.embedder.Dimension())
}

func TestStoreVectorRepresentation(t *testing.T) {
	m := newProceduralFixture(t)
	ctx := context.Background()

	vec := make([]float32, m.embedder.Dimension())
	vec[0] = 1
	id, err := m.Store(ctx, SkillInput{Policy: "p", Vector: vec})
	require.NoError(t, err)

	skills, err := m.VectorQuery(ctx, model.Query{Kind: model.QueryVector, Vector: vec}, 1)
	require.NoError(t, err)
	require.Len(t, skills, 1)
	require.Equal(t, id, skills[0].ID)
}

func TestStoreRepresentationExactlyOne(t *testing.T) {
	m := newProceduralFixture(t)
	ctx := context.Background()
	var validation *model.ValidationError

	_, err := m.Store(ctx, SkillInput{Policy: "p"})
	require.ErrorAs(t, err, &validation)

	vec := make([]float32, m.embedder.Dimension())
	_, err = m.Store(ctx, SkillInput{Policy: "p", Text: "t", Vector: vec})
	require.ErrorAs(t, err, &validation)

	_, err = m.Store(ctx, SkillInput{Policy: "p", Vector: []float32{1, 2}})
	require.ErrorAs(t, err, &validation)
}

func TestMetadataQuery(t *testing.T) {
	m := newProceduralFixture(t)
	ctx := context.Background()

	_, err := m.Store(ctx, SkillInput{Policy: "p1", Text: "alpha", Metadata: map[string]any{"domain": "research", "tier": float64(1)}})
	require.NoError(t, err)
	_, err = m.Store(ctx, SkillInput{Policy: "p2", Text: "beta", Metadata: map[string]any{"domain": "coding"}})
	require.NoError(t, err)

	skills, err := m.MetadataQuery(ctx, map[string]any{"domain": "research"}, 10)
	require.NoError(t, err)
	require.Len(t, skills, 1)

	// Conjunction: both pairs must hold.
	skills, err = m.MetadataQuery(ctx, map[string]any{"domain": "research", "tier": float64(2)}, 10)
	require.NoError(t, err)
	require.Empty(t, skills)

	// Unknown keys return empty.
	skills, err = m.MetadataQuery(ctx, map[string]any{"nonexistent": "x"}, 10)
	require.NoError(t, err)
	require.Empty(t, skills)
}

func TestVectorQueryRoutesMetadata(t *testing.T) {
	m := newProceduralFixture(t)
	ctx := context.Background()

	_, err := m.Store(ctx, SkillInput{Policy: "p", Text: "alpha", Metadata: map[string]any{"domain": "research"}})
	require.NoError(t, err)

	skills, err := m.VectorQuery(ctx, model.Query{Kind: model.QueryMetadata, Metadata: map[string]any{"domain": "research"}}, 10)
	require.NoError(t, err)
	require.Len(t, skills, 1)
}
