package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adrianwedd/ltm-service/internal/model"
	graphmemory "github.com/adrianwedd/ltm-service/internal/plugin/graph/memory"
	kvmemory "github.com/adrianwedd/ltm-service/internal/plugin/kv/memory"
)

func newSemanticFixture(t *testing.T) *SemanticMemory {
	t.Helper()
	return NewSemanticMemory(graphmemory.New(), NewProvenanceTracker(kvmemory.New()))
}

func TestConsolidateJSONLDIsIdempotent(t *testing.T) {
	m := newSemanticFixture(t)
	ctx := context.Background()

	payload := map[string]any{"subject": "Transformer", "predicate": "IS_A", "object": "Model"}
	first, err := m.Consolidate(ctx, payload, FormatJSONLD, model.Provenance{Source: "researcher"})
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := m.Consolidate(ctx, payload, FormatJSONLD, model.Provenance{Source: "researcher"})
	require.NoError(t, err)
	require.Equal(t, first, second)

	rels, err := m.Retrieve(ctx, map[string]any{"subject": "Transformer"}, 10)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.Equal(t, "Model", rels[0].Object)
}

func TestConsolidateValidatesPayload(t *testing.T) {
	m := newSemanticFixture(t)
	ctx := context.Background()
	var validation *model.ValidationError

	_, err := m.Consolidate(ctx, map[string]any{"subject": "a"}, FormatJSONLD, model.Provenance{})
	require.ErrorAs(t, err, &validation)

	_, err = m.Consolidate(ctx, map[string]any{"subject": "a", "predicate": "p", "object": "b", "bogus": 1}, FormatJSONLD, model.Provenance{})
	require.ErrorAs(t, err, &validation)

	_, err = m.Consolidate(ctx, map[string]any{"subject": "a", "predicate": "p", "object": "b", "confidence": 1.5}, FormatJSONLD, model.Provenance{})
	require.ErrorAs(t, err, &validation)

	_, err = m.Consolidate(ctx, map[string]any{}, "turtle", model.Provenance{})
	require.ErrorAs(t, err, &validation)
}

func TestConsolidateCypherWithoutBackend(t *testing.T) {
	m := newSemanticFixture(t)
	_, err := m.Consolidate(context.Background(), "MATCH (n) RETURN n", FormatCypher, model.Provenance{})
	var backend *model.BackendUnavailableError
	require.ErrorAs(t, err, &backend)
}

func TestRetrieveOrdersByConfidence(t *testing.T) {
	m := newSemanticFixture(t)
	ctx := context.Background()

	consolidate := func(object string, confidence any) {
		payload := map[string]any{"subject": "s", "predicate": "p", "object": object}
		if confidence != nil {
			payload["confidence"] = confidence
		}
		_, err := m.Consolidate(ctx, payload, FormatJSONLD, model.Provenance{})
		require.NoError(t, err)
	}
	consolidate("first", nil)
	consolidate("second", 0.9)
	consolidate("third", 0.4)

	rels, err := m.Retrieve(ctx, map[string]any{"subject": "s", "predicate": "p"}, 10)
	require.NoError(t, err)
	require.Len(t, rels, 3)
	require.Equal(t, "second", rels[0].Object)
	require.Equal(t, "third", rels[1].Object)
	require.Equal(t, "first", rels[2].Object)
}

func TestPropagateSubgraph(t *testing.T) {
	m := newSemanticFixture(t)
	ctx := context.Background()

	ids, err := m.PropagateSubgraph(ctx,
		[]map[string]any{{"name": "a"}, {"name": "b"}, {"name": "c"}},
		[]map[string]any{
			{"subject": "a", "predicate": "links", "object": "b"},
			{"subject": "b", "predicate": "links", "object": "c"},
		},
		model.Provenance{Source: "graph-builder"})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	for _, id := range ids {
		prov, err := m.Provenance(ctx, id)
		require.NoError(t, err)
		require.Equal(t, "graph-builder", prov.Source)
	}
}

func TestPropagateSubgraphValidatesBeforeWriting(t *testing.T) {
	m := newSemanticFixture(t)
	ctx := context.Background()

	_, err := m.PropagateSubgraph(ctx,
		[]map[string]any{{"name": "a"}},
		[]map[string]any{{"subject": "a", "predicate": "p"}},
		model.Provenance{})
	var validation *model.ValidationError
	require.ErrorAs(t, err, &validation)

	// The failed call left nothing behind.
	rels, err := m.Retrieve(ctx, map[string]any{"subject": "a"}, 10)
	require.NoError(t, err)
	require.Empty(t, rels)
}
