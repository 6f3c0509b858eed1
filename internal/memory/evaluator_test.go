package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adrianwedd/ltm-service/internal/model"
	kvmemory "github.com/adrianwedd/ltm-service/internal/plugin/kv/memory"
)

func newEvaluatorFixture(t *testing.T) *EvaluatorMemory {
	t.Helper()
	kv := kvmemory.New()
	return NewEvaluatorMemory(kv, NewProvenanceTracker(kv))
}

func TestStoreAndRetrieveByFingerprint(t *testing.T) {
	m := newEvaluatorFixture(t)
	ctx := context.Background()

	queryContext := map[string]any{"task": "summarize", "topic": "biology"}
	base := time.Unix(1_700_000_000, 0)

	store := func(at time.Time, payload string, context any) string {
		m.now = func() time.Time { return at }
		id, err := m.Store(ctx, payload, context, model.Provenance{Source: "evaluator"})
		require.NoError(t, err)
		return id
	}
	store(base, "first critique", queryContext)
	newest := store(base.Add(time.Hour), "second critique", queryContext)
	store(base.Add(2*time.Hour), "unrelated", map[string]any{"task": "other"})

	critiques, err := m.Retrieve(ctx, queryContext, 10)
	require.NoError(t, err)
	require.Len(t, critiques, 2)
	require.Equal(t, newest, critiques[0].ID)
	require.Equal(t, "second critique", critiques[0].Payload)
}

func TestFingerprintIgnoresKeyOrder(t *testing.T) {
	m := newEvaluatorFixture(t)
	ctx := context.Background()

	_, err := m.Store(ctx, "c", map[string]any{"a": float64(1), "b": "x"}, model.Provenance{})
	require.NoError(t, err)

	critiques, err := m.Retrieve(ctx, map[string]any{"b": "x", "a": float64(1)}, 5)
	require.NoError(t, err)
	require.Len(t, critiques, 1)
}

func TestRetrieveLimit(t *testing.T) {
	m := newEvaluatorFixture(t)
	ctx := context.Background()

	queryContext := map[string]any{"k": "v"}
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 8; i++ {
		m.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		_, err := m.Store(ctx, "c", queryContext, model.Provenance{})
		require.NoError(t, err)
	}

	critiques, err := m.Retrieve(ctx, queryContext, 0)
	require.NoError(t, err)
	require.Len(t, critiques, model.DefaultRetrieveLimit)

	_, err = m.Retrieve(ctx, queryContext, 51)
	var validation *model.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestEvaluatorForget(t *testing.T) {
	m := newEvaluatorFixture(t)
	ctx := context.Background()

	queryContext := map[string]any{"k": "v"}
	id, err := m.Store(ctx, "c1", queryContext, model.Provenance{})
	require.NoError(t, err)
	_, err = m.Store(ctx, "c2", map[string]any{"k": "other"}, model.Provenance{})
	require.NoError(t, err)

	removed, err := m.Forget(ctx, EvaluatorForgetPredicate{IDs: []string{id}})
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	removed, err = m.Forget(ctx, EvaluatorForgetPredicate{IDs: []string{id}})
	require.NoError(t, err)
	require.Zero(t, removed)

	removed, err = m.Forget(ctx, EvaluatorForgetPredicate{QueryContext: map[string]any{"k": "other"}})
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}
