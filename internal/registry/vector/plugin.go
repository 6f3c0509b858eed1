package vector

import (
	"context"
	"fmt"
)

// Collection names, one per module that needs similarity lookup.
const (
	CollectionEpisodic = "episodic_records"
	CollectionSkills   = "skills"
)

// Document is a stored point: an embedding plus the full record payload, so
// results can be reconstructed without a second hop.
type Document struct {
	ID        string
	Embedding []float32
	Payload   map[string]any
}

// SearchResult is a single similarity hit.
type SearchResult struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// VectorStore defines the interface for vector search backends.
type VectorStore interface {
	// Upsert stores or replaces documents in a collection.
	Upsert(ctx context.Context, collection string, docs []Document) error
	// Search returns up to limit documents ranked by descending cosine
	// similarity to the embedding.
	Search(ctx context.Context, collection string, embedding []float32, limit int) ([]SearchResult, error)
	// Scroll returns every document in a collection. Used by metadata
	// filters and the forgetting pass.
	Scroll(ctx context.Context, collection string) ([]Document, error)
	// Delete removes documents by id. Unknown ids are ignored.
	Delete(ctx context.Context, collection string, ids []string) error
	// Name returns the plugin name (e.g. "qdrant", "memory").
	Name() string
}

// Loader creates a VectorStore from config.
type Loader func(ctx context.Context) (VectorStore, error)

// Plugin represents a vector store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a vector store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered vector store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named vector store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown vector store %q; valid: %v", name, Names())
}
