package memory

import (
	"context"
	"testing"

	"github.com/adrianwedd/ltm-service/internal/model"
	registrygraph "github.com/adrianwedd/ltm-service/internal/registry/graph"
	"github.com/stretchr/testify/require"
)

func fact(subject, predicate string, tx float64) model.TemporalFact {
	return model.TemporalFact{
		ID:        subject + "/" + predicate,
		Subject:   subject,
		Predicate: predicate,
		Object:    "o",
		ValidFrom: 0,
		TxTime:    tx,
	}
}

func TestMergeRelationIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	rel := registrygraph.Relation{Subject: "Transformer", Predicate: "IS_A", Object: "Model"}
	id1, err := s.MergeRelation(ctx, rel)
	require.NoError(t, err)
	id2, err := s.MergeRelation(ctx, rel)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	rels, err := s.Relations(ctx, "Transformer", "", "")
	require.NoError(t, err)
	require.Len(t, rels, 1)

	// Exactly one entity node per distinct name.
	require.Len(t, s.entities, 2)
}

func TestRelationsWildcardsAndOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()

	low, high := 0.2, 0.9
	_, err := s.MergeRelation(ctx, registrygraph.Relation{Subject: "a", Predicate: "p", Object: "b", Confidence: &low})
	require.NoError(t, err)
	_, err = s.MergeRelation(ctx, registrygraph.Relation{Subject: "a", Predicate: "p", Object: "c", Confidence: &high})
	require.NoError(t, err)
	_, err = s.MergeRelation(ctx, registrygraph.Relation{Subject: "a", Predicate: "q", Object: "d"})
	require.NoError(t, err)

	rels, err := s.Relations(ctx, "a", "p", "")
	require.NoError(t, err)
	require.Len(t, rels, 2)
	require.Equal(t, "c", rels[0].Object)
	require.Equal(t, "b", rels[1].Object)

	all, err := s.Relations(ctx, "", "", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Absent confidence sorts as 0, after both explicit confidences.
	require.Equal(t, "d", all[2].Object)
}

func TestMergeSubgraphReturnsRelationIDs(t *testing.T) {
	s := New()
	ctx := context.Background()

	ids, err := s.MergeSubgraph(ctx,
		[]registrygraph.Entity{{Name: "x"}, {Name: "y"}},
		[]registrygraph.Relation{
			{Subject: "x", Predicate: "links", Object: "y"},
			{Subject: "y", Predicate: "links", Object: "x"},
		})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.NotEqual(t, ids[0], ids[1])
	require.Equal(t, RelationID("x", "links", "y"), ids[0])
}

func TestFactsFilter(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.AppendFact(ctx, fact("a", "p", 1)))
	require.NoError(t, s.AppendFact(ctx, fact("a", "q", 2)))
	require.NoError(t, s.AppendFact(ctx, fact("b", "p", 3)))

	facts, err := s.Facts(ctx, "a", "")
	require.NoError(t, err)
	require.Len(t, facts, 2)

	facts, err = s.Facts(ctx, "", "p")
	require.NoError(t, err)
	require.Len(t, facts, 2)

	facts, err = s.Facts(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, facts, 3)
}
