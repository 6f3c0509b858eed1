package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adrianwedd/ltm-service/internal/model"
)

func TestForgettingPassHybridDecay(t *testing.T) {
	episodic := newEpisodicFixture(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	// Half the records were last touched 60 days ago with a low score;
	// half were accessed today.
	for i := 0; i < 50; i++ {
		episodic.now = func() time.Time { return now.Add(-60 * 24 * time.Hour) }
		_, err := episodic.Consolidate(ctx, model.EpisodicRecord{
			TaskQuery: fmt.Sprintf("stale task %d", i),
			Outcome:   "stale",
			Score:     0.1,
		})
		require.NoError(t, err)
	}
	for i := 0; i < 50; i++ {
		episodic.now = func() time.Time { return now }
		_, err := episodic.Consolidate(ctx, model.EpisodicRecord{
			TaskQuery: fmt.Sprintf("fresh task %d", i),
			Outcome:   "fresh",
			Score:     0.1,
		})
		require.NoError(t, err)
	}

	engine := NewForgettingEngine(episodic, DefaultForgettingPolicy())
	engine.now = func() time.Time { return now }

	removed, err := engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 50, removed)

	remaining, err := episodic.All(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 50)
	for _, rec := range remaining {
		require.Equal(t, "fresh", rec.Outcome)
	}

	// A second tick finds nothing left to remove.
	removed, err = engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestForgettingSparesValuableCandidates(t *testing.T) {
	episodic := newEpisodicFixture(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	// Old but perfect-score record: utility = 0.5·1.0 − 0.2·age_days.
	// At 2 days past TTL the penalty is far above the threshold, so it is
	// removed; policy weights decide, not TTL alone.
	episodic.now = func() time.Time { return now.Add(-32 * 24 * time.Hour) }
	_, err := episodic.Consolidate(ctx, model.EpisodicRecord{TaskQuery: "old", Score: 1.0})
	require.NoError(t, err)

	policy := DefaultForgettingPolicy()
	policy.Gamma = 0 // age no longer penalized
	engine := NewForgettingEngine(episodic, policy)
	engine.now = func() time.Time { return now }

	removed, err := engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, removed, "candidate with positive utility survives")

	// With the default weights the same record is pruned.
	engine = NewForgettingEngine(episodic, DefaultForgettingPolicy())
	engine.now = func() time.Time { return now }
	removed, err = engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}

func TestForgettingUtilityFormula(t *testing.T) {
	policy := DefaultForgettingPolicy()
	rec := model.EpisodicRecord{Score: 0.8, AccessCount: 0, CreatedAt: 0}
	// utility = 0.5·0.8 + 0.3·log(1) − 0.2·0 = 0.4
	require.InDelta(t, 0.4, policy.Utility(rec, 0), 1e-9)

	rec.AccessCount = 9 // log(10)
	require.InDelta(t, 0.4+0.3*2.302585092994046, policy.Utility(rec, 0), 1e-9)

	// One day of age costs Gamma.
	require.InDelta(t, policy.Utility(rec, 0)-0.2, policy.Utility(rec, 86400), 1e-9)
}
