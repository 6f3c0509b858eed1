package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	registryvector "github.com/adrianwedd/ltm-service/internal/registry/vector"
)

func init() {
	registryvector.Register(registryvector.Plugin{
		Name: "memory",
		Loader: func(_ context.Context) (registryvector.VectorStore, error) {
			return New(), nil
		},
	})
}

// Store is the in-process reference vector store. Documents live in a map
// per collection; search is a full cosine scan. Suitable for tests and
// single-node development deployments.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]registryvector.Document
}

// New creates an empty in-memory vector store.
func New() *Store {
	return &Store{collections: make(map[string]map[string]registryvector.Document)}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Upsert(_ context.Context, collection string, docs []registryvector.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string]registryvector.Document)
		s.collections[collection] = col
	}
	for _, d := range docs {
		col[d.ID] = cloneDocument(d)
	}
	return nil
}

func (s *Store) Search(_ context.Context, collection string, embedding []float32, limit int) ([]registryvector.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col := s.collections[collection]
	results := make([]registryvector.SearchResult, 0, len(col))
	for _, d := range col {
		results = append(results, registryvector.SearchResult{
			ID:      d.ID,
			Score:   cosineSimilarity(embedding, d.Embedding),
			Payload: clonePayload(d.Payload),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Store) Scroll(_ context.Context, collection string) ([]registryvector.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col := s.collections[collection]
	docs := make([]registryvector.Document, 0, len(col))
	for _, d := range col {
		docs = append(docs, cloneDocument(d))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *Store) Delete(_ context.Context, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.collections[collection]
	for _, id := range ids {
		delete(col, id)
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func cloneDocument(d registryvector.Document) registryvector.Document {
	emb := make([]float32, len(d.Embedding))
	copy(emb, d.Embedding)
	return registryvector.Document{ID: d.ID, Embedding: emb, Payload: clonePayload(d.Payload)}
}

func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

var _ registryvector.VectorStore = (*Store)(nil)
