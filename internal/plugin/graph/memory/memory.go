package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/adrianwedd/ltm-service/internal/model"
	registrygraph "github.com/adrianwedd/ltm-service/internal/registry/graph"
)

func init() {
	registrygraph.Register(registrygraph.Plugin{
		Name: "memory",
		Loader: func(_ context.Context) (registrygraph.GraphStore, error) {
			return New(), nil
		},
	})
}

// relationNamespace derives stable relation ids from (subject, predicate,
// object) so re-merging the same triple yields the same identity.
var relationNamespace = uuid.MustParse("8f3c1b52-7a0e-4f8e-9b64-d51c20c0a1f7")

// RelationID returns the deterministic id for a relation key.
func RelationID(subject, predicate, object string) string {
	key := subject + "\x00" + predicate + "\x00" + object
	return uuid.NewSHA1(relationNamespace, []byte(key)).String()
}

// Store is the in-process graph fallback with the same MERGE semantics as
// the external graph store: entity identity is name, relation identity is
// (subject, predicate, object). Activated when no graph backend is
// configured; also the store the tests run against.
type Store struct {
	mu        sync.RWMutex
	entities  map[string]registrygraph.Entity
	relations map[string]registrygraph.StoredRelation
	facts     []model.TemporalFact
	seq       int64
}

// New creates an empty in-memory graph store.
func New() *Store {
	return &Store{
		entities:  make(map[string]registrygraph.Entity),
		relations: make(map[string]registrygraph.StoredRelation),
	}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) MergeEntity(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeEntityLocked(name)
	return nil
}

func (s *Store) mergeEntityLocked(name string) {
	if _, ok := s.entities[name]; !ok {
		s.entities[name] = registrygraph.Entity{Name: name}
	}
}

func (s *Store) MergeRelation(_ context.Context, rel registrygraph.Relation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeRelationLocked(rel), nil
}

func (s *Store) mergeRelationLocked(rel registrygraph.Relation) string {
	s.mergeEntityLocked(rel.Subject)
	s.mergeEntityLocked(rel.Object)

	id := RelationID(rel.Subject, rel.Predicate, rel.Object)
	existing, ok := s.relations[id]
	if !ok {
		s.seq++
		existing = registrygraph.StoredRelation{
			ID:        id,
			Subject:   rel.Subject,
			Predicate: rel.Predicate,
			Object:    rel.Object,
			Seq:       s.seq,
		}
	}
	// A re-merge refreshes mutable attributes, never the identity or Seq.
	if rel.Confidence != nil {
		c := *rel.Confidence
		existing.Confidence = &c
	}
	if len(rel.Props) > 0 {
		if existing.Props == nil {
			existing.Props = make(map[string]any, len(rel.Props))
		}
		for k, v := range rel.Props {
			existing.Props[k] = v
		}
	}
	s.relations[id] = existing
	return id
}

func (s *Store) MergeSubgraph(_ context.Context, entities []registrygraph.Entity, relations []registrygraph.Relation) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// All writes happen under one lock acquisition, so observers see either
	// none or all of the subgraph.
	for _, e := range entities {
		s.mergeEntityLocked(e.Name)
	}
	ids := make([]string, len(relations))
	for i, rel := range relations {
		ids[i] = s.mergeRelationLocked(rel)
	}
	return ids, nil
}

func (s *Store) Relations(_ context.Context, subject, predicate, object string) ([]registrygraph.StoredRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []registrygraph.StoredRelation
	for _, rel := range s.relations {
		if subject != "" && rel.Subject != subject {
			continue
		}
		if predicate != "" && rel.Predicate != predicate {
			continue
		}
		if object != "" && rel.Object != object {
			continue
		}
		out = append(out, rel)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := confidenceOf(out[i]), confidenceOf(out[j])
		if ci != cj {
			return ci > cj
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func confidenceOf(rel registrygraph.StoredRelation) float64 {
	if rel.Confidence == nil {
		return 0
	}
	return *rel.Confidence
}

// Run cannot execute raw graph statements without an external backend.
func (s *Store) Run(_ context.Context, _ string) ([]map[string]any, error) {
	return nil, &model.BackendUnavailableError{
		Backend: "graph",
		Err:     errStatementsUnsupported,
	}
}

var errStatementsUnsupported = statementError("raw statements require an external graph backend")

type statementError string

func (e statementError) Error() string { return string(e) }

func (s *Store) AppendFact(_ context.Context, fact model.TemporalFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, fact)
	return nil
}

func (s *Store) Facts(_ context.Context, subject, predicate string) ([]model.TemporalFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.TemporalFact
	for _, f := range s.facts {
		if subject != "" && f.Subject != subject {
			continue
		}
		if predicate != "" && f.Predicate != predicate {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

var _ registrygraph.GraphStore = (*Store)(nil)
