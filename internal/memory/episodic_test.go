package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adrianwedd/ltm-service/internal/model"
	embedlocal "github.com/adrianwedd/ltm-service/internal/plugin/embed/local"
	kvmemory "github.com/adrianwedd/ltm-service/internal/plugin/kv/memory"
	vectormemory "github.com/adrianwedd/ltm-service/internal/plugin/vector/memory"
)

func newEpisodicFixture(t *testing.T) *EpisodicMemory {
	t.Helper()
	kv := kvmemory.New()
	return NewEpisodicMemory(vectormemory.New(), &embedlocal.LocalEmbedder{}, NewProvenanceTracker(kv))
}

func textQuery(text string) model.Query {
	return model.Query{Kind: model.QueryText, Text: text}
}

func TestConsolidateRetrieveRoundTrip(t *testing.T) {
	m := newEpisodicFixture(t)
	ctx := context.Background()

	id, err := m.Consolidate(ctx, model.EpisodicRecord{
		TaskQuery:  "define photosynthesis",
		Outcome:    "plants convert light to chemical energy",
		Score:      0.9,
		Provenance: model.Provenance{Source: "supervisor"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	retrievalTime := time.Now().Add(time.Minute)
	m.now = func() time.Time { return retrievalTime }

	results, err := m.Retrieve(ctx, textQuery("what is photosynthesis"), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, id, results[0].ID)
	require.Equal(t, 1, results[0].AccessCount)
	require.InDelta(t, unixSeconds(retrievalTime), results[0].LastAccessedAt, 1e-6)

	// Access stats accumulate across retrievals.
	results, err = m.Retrieve(ctx, textQuery("what is photosynthesis"), 1)
	require.NoError(t, err)
	require.Equal(t, 2, results[0].AccessCount)
}

func TestRetrieveTieBreaking(t *testing.T) {
	m := newEpisodicFixture(t)
	ctx := context.Background()

	// Identical task queries embed identically, forcing a similarity tie.
	base := time.Unix(1_700_000_000, 0)
	consolidate := func(at time.Time, score float64) string {
		m.now = func() time.Time { return at }
		id, err := m.Consolidate(ctx, model.EpisodicRecord{TaskQuery: "same query", Outcome: "o", Score: score})
		require.NoError(t, err)
		return id
	}
	older := consolidate(base, 0.5)
	newer := consolidate(base.Add(time.Hour), 0.5)
	best := consolidate(base.Add(2*time.Hour), 0.9)

	results, err := m.Retrieve(ctx, textQuery("same query"), 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, best, results[0].ID)
	require.Equal(t, older, results[1].ID)
	require.Equal(t, newer, results[2].ID)
}

func TestRetrieveVectorDimensionMismatch(t *testing.T) {
	m := newEpisodicFixture(t)
	_, err := m.Retrieve(context.Background(), model.Query{Kind: model.QueryVector, Vector: []float32{1, 2, 3}}, 5)
	var validation *model.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestRetrieveNoMatchesIsNotAnError(t *testing.T) {
	m := newEpisodicFixture(t)
	results, err := m.Retrieve(context.Background(), textQuery("anything"), 5)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestRetrieveByMetadata(t *testing.T) {
	m := newEpisodicFixture(t)
	ctx := context.Background()

	id, err := m.Consolidate(ctx, model.EpisodicRecord{TaskQuery: "q1", Outcome: "success", Score: 0.7})
	require.NoError(t, err)
	_, err = m.Consolidate(ctx, model.EpisodicRecord{TaskQuery: "q2", Outcome: "failure", Score: 0.2})
	require.NoError(t, err)

	results, err := m.Retrieve(ctx, model.Query{Kind: model.QueryMetadata, Metadata: map[string]any{"outcome": "success"}}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, id, results[0].ID)
}

func TestConsolidateValidation(t *testing.T) {
	m := newEpisodicFixture(t)
	ctx := context.Background()

	_, err := m.Consolidate(ctx, model.EpisodicRecord{Outcome: "o", Score: 0.5})
	var validation *model.ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = m.Consolidate(ctx, model.EpisodicRecord{TaskQuery: "q", Score: 1.5})
	require.ErrorAs(t, err, &validation)
}

func TestForgetIsIdempotent(t *testing.T) {
	m := newEpisodicFixture(t)
	ctx := context.Background()

	_, err := m.Consolidate(ctx, model.EpisodicRecord{TaskQuery: "a", Outcome: "stale", Score: 0.1})
	require.NoError(t, err)
	_, err = m.Consolidate(ctx, model.EpisodicRecord{TaskQuery: "b", Outcome: "stale", Score: 0.1})
	require.NoError(t, err)
	_, err = m.Consolidate(ctx, model.EpisodicRecord{TaskQuery: "c", Outcome: "fresh", Score: 0.9})
	require.NoError(t, err)

	pred := model.ForgetPredicate{Metadata: map[string]any{"outcome": "stale"}}
	removed, err := m.Forget(ctx, pred)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	removed, err = m.Forget(ctx, pred)
	require.NoError(t, err)
	require.Zero(t, removed)

	remaining, err := m.All(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
}

func TestForgetByIDRemovesProvenance(t *testing.T) {
	m := newEpisodicFixture(t)
	ctx := context.Background()

	id, err := m.Consolidate(ctx, model.EpisodicRecord{TaskQuery: "q", Score: 0.5, Provenance: model.Provenance{Source: "agent"}})
	require.NoError(t, err)

	prov, err := m.Provenance(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "agent", prov.Source)

	removed, err := m.Forget(ctx, model.ForgetPredicate{IDs: []string{id}})
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = m.Provenance(ctx, id)
	var notFound *model.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestProvenanceRoundTrip(t *testing.T) {
	m := newEpisodicFixture(t)
	ctx := context.Background()

	id, err := m.Consolidate(ctx, model.EpisodicRecord{
		TaskQuery:  "q",
		Score:      0.5,
		Provenance: model.Provenance{Source: "orchestrator", ParentIDs: []string{"p1"}},
	})
	require.NoError(t, err)

	prov, err := m.Provenance(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "orchestrator", prov.Source)
	require.Equal(t, []string{"p1"}, prov.ParentIDs)
	require.NotZero(t, prov.RecordedAt)
}
