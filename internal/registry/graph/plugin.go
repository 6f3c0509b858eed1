package graph

import (
	"context"
	"fmt"

	"github.com/adrianwedd/ltm-service/internal/model"
)

// Entity is a node keyed by name.
type Entity struct {
	Name  string
	Props map[string]any
}

// Relation is an edge keyed by (subject, predicate, object). MERGE semantics:
// writing the same key twice never creates a duplicate.
type Relation struct {
	Subject    string
	Predicate  string
	Object     string
	Confidence *float64
	Props      map[string]any
}

// StoredRelation is a relation as read back from the store. Seq reflects
// insertion order of the first merge and is stable across re-merges.
type StoredRelation struct {
	ID         string
	Subject    string
	Predicate  string
	Object     string
	Confidence *float64
	Props      map[string]any
	Seq        int64
}

// GraphStore defines the interface for knowledge graph backends.
type GraphStore interface {
	// MergeEntity creates the entity node if absent.
	MergeEntity(ctx context.Context, name string) error
	// MergeRelation merges both endpoint entities and the relation, and
	// returns the relation's stable id.
	MergeRelation(ctx context.Context, rel Relation) (string, error)
	// MergeSubgraph merges all entities and relations in one transaction:
	// observers see either all of its relations or none.
	MergeSubgraph(ctx context.Context, entities []Entity, relations []Relation) ([]string, error)
	// Relations returns relations matching the pattern; empty strings act
	// as wildcards. Results are ordered by descending confidence (absent
	// counts as 0), then insertion order.
	Relations(ctx context.Context, subject, predicate, object string) ([]StoredRelation, error)
	// Run executes a raw graph statement and returns its rows.
	Run(ctx context.Context, statement string) ([]map[string]any, error)
	// AppendFact appends a temporal fact version. Never overwrites.
	AppendFact(ctx context.Context, fact model.TemporalFact) error
	// Facts returns fact versions matching subject/predicate; empty strings
	// act as wildcards.
	Facts(ctx context.Context, subject, predicate string) ([]model.TemporalFact, error)
	// Name returns the plugin name (e.g. "neo4j", "memory").
	Name() string
}

// Loader creates a GraphStore from config.
type Loader func(ctx context.Context) (GraphStore, error)

// Plugin represents a graph store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a graph store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered graph store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named graph store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown graph store %q; valid: %v", name, Names())
}
