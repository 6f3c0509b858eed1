package memory

import (
	"context"
	"time"

	"github.com/adrianwedd/ltm-service/internal/model"
	registrygraph "github.com/adrianwedd/ltm-service/internal/registry/graph"
)

// Consolidation payload formats.
const (
	FormatJSONLD = "jsonld"
	FormatCypher = "cypher"
)

// SemanticMemory stores (subject, predicate, object) triples in the graph
// store with MERGE semantics: re-consolidating a triple never duplicates it.
type SemanticMemory struct {
	graph          registrygraph.GraphStore
	provenance     *ProvenanceTracker
	backendTimeout time.Duration
	now            func() time.Time
}

// NewSemanticMemory wires the semantic module onto the graph store.
func NewSemanticMemory(graph registrygraph.GraphStore, provenance *ProvenanceTracker) *SemanticMemory {
	return &SemanticMemory{graph: graph, provenance: provenance, backendTimeout: DefaultBackendTimeout, now: time.Now}
}

// SetBackendTimeout overrides the per-call graph store timeout.
func (m *SemanticMemory) SetBackendTimeout(d time.Duration) {
	if d > 0 {
		m.backendTimeout = d
	}
}

func (m *SemanticMemory) graphCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.backendTimeout)
}

// Consolidate ingests a jsonld triple (idempotent MERGE of both entity
// nodes and the relation) or executes a raw cypher statement. Either way
// the caller sees the list of produced identifiers or rows.
func (m *SemanticMemory) Consolidate(ctx context.Context, payload any, format string, prov model.Provenance) ([]any, error) {
	switch format {
	case FormatJSONLD:
		triple, err := tripleFromPayload(payload)
		if err != nil {
			return nil, err
		}
		callCtx, cancel := m.graphCtx(ctx)
		id, err := m.graph.MergeRelation(callCtx, triple)
		cancel()
		if err != nil {
			return nil, err
		}
		if prov.RecordedAt == 0 {
			prov.RecordedAt = unixSeconds(m.now())
		}
		if err := m.provenance.Record(ctx, model.MemoryTypeSemantic, id, prov); err != nil {
			return nil, err
		}
		return []any{id}, nil
	case FormatCypher:
		statement, ok := payload.(string)
		if !ok {
			return nil, &model.ValidationError{Field: "payload", Message: "must be a string for cypher format"}
		}
		callCtx, cancel := m.graphCtx(ctx)
		rows, err := m.graph.Run(callCtx, statement)
		cancel()
		if err != nil {
			return nil, err
		}
		out := make([]any, len(rows))
		for i, r := range rows {
			out[i] = r
		}
		return out, nil
	default:
		return nil, &model.ValidationError{Field: "format", Message: `must be "jsonld" or "cypher"`}
	}
}

func tripleFromPayload(payload any) (registrygraph.Relation, error) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return registrygraph.Relation{}, &model.ValidationError{Field: "payload", Message: "must be an object for jsonld format"}
	}
	rel := registrygraph.Relation{}
	for key, value := range obj {
		switch key {
		case "subject", "predicate", "object":
			s, ok := value.(string)
			if !ok || s == "" {
				return registrygraph.Relation{}, &model.ValidationError{Field: "payload." + key, Message: "must be a non-empty string"}
			}
			switch key {
			case "subject":
				rel.Subject = s
			case "predicate":
				rel.Predicate = s
			case "object":
				rel.Object = s
			}
		case "confidence":
			c, ok := value.(float64)
			if !ok || c < 0 || c > 1 {
				return registrygraph.Relation{}, &model.ValidationError{Field: "payload.confidence", Message: "must be a number in [0, 1]"}
			}
			rel.Confidence = &c
		default:
			return registrygraph.Relation{}, &model.ValidationError{Field: "payload." + key, Message: "unknown field"}
		}
	}
	if rel.Subject == "" || rel.Predicate == "" || rel.Object == "" {
		return registrygraph.Relation{}, &model.ValidationError{Field: "payload", Message: "subject, predicate, and object are required"}
	}
	return rel, nil
}

// PropagateSubgraph merges every entity and relation in a single
// transaction; callers never observe a partial subgraph.
func (m *SemanticMemory) PropagateSubgraph(ctx context.Context, entities []map[string]any, relations []map[string]any, prov model.Provenance) ([]string, error) {
	graphEntities := make([]registrygraph.Entity, len(entities))
	for i, e := range entities {
		name, ok := e["name"].(string)
		if !ok || name == "" {
			return nil, &model.ValidationError{Field: "entities", Message: "each entity requires a non-empty name"}
		}
		graphEntities[i] = registrygraph.Entity{Name: name}
	}
	graphRelations := make([]registrygraph.Relation, len(relations))
	for i, r := range relations {
		rel, err := tripleFromPayload(r)
		if err != nil {
			return nil, err
		}
		graphRelations[i] = rel
	}

	callCtx, cancel := m.graphCtx(ctx)
	ids, err := m.graph.MergeSubgraph(callCtx, graphEntities, graphRelations)
	cancel()
	if err != nil {
		return nil, err
	}
	if prov.RecordedAt == 0 {
		prov.RecordedAt = unixSeconds(m.now())
	}
	for _, id := range ids {
		if err := m.provenance.Record(ctx, model.MemoryTypeSemantic, id, prov); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// Retrieve matches triples against any subset of {subject, predicate,
// object}; missing keys act as wildcards. Results are ordered by descending
// confidence (absent counts as 0), then insertion order.
func (m *SemanticMemory) Retrieve(ctx context.Context, query map[string]any, limit int) ([]registrygraph.StoredRelation, error) {
	limit, err := model.NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	var subject, predicate, object string
	for key, value := range query {
		s, ok := value.(string)
		if !ok {
			return nil, &model.ValidationError{Field: "query." + key, Message: "must be a string"}
		}
		switch key {
		case "subject":
			subject = s
		case "predicate":
			predicate = s
		case "object":
			object = s
		default:
			return nil, &model.ValidationError{Field: "query." + key, Message: "unknown field"}
		}
	}

	callCtx, cancel := m.graphCtx(ctx)
	rels, err := m.graph.Relations(callCtx, subject, predicate, object)
	cancel()
	if err != nil {
		return nil, err
	}
	if len(rels) > limit {
		rels = rels[:limit]
	}
	observeRetrieval(model.MemoryTypeSemantic, len(rels))
	return rels, nil
}

// Provenance returns the lineage recorded at consolidation.
func (m *SemanticMemory) Provenance(ctx context.Context, id string) (model.Provenance, error) {
	return m.provenance.Lookup(ctx, model.MemoryTypeSemantic, id)
}
