package memory

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/adrianwedd/ltm-service/internal/model"
	registryembed "github.com/adrianwedd/ltm-service/internal/registry/embed"
	registryvector "github.com/adrianwedd/ltm-service/internal/registry/vector"
)

// EpisodicMemory maintains vector-indexed records of past tasks. Records are
// stored as immutable payload snapshots; access-stat updates go through a
// dedicated write path serialized per record id.
type EpisodicMemory struct {
	vectors        registryvector.VectorStore
	embedder       registryembed.Embedder
	provenance     *ProvenanceTracker
	accessMu       keyedMutex
	backendTimeout time.Duration
	now            func() time.Time
}

// NewEpisodicMemory wires the episodic module onto its adapters.
func NewEpisodicMemory(vectors registryvector.VectorStore, embedder registryembed.Embedder, provenance *ProvenanceTracker) *EpisodicMemory {
	return &EpisodicMemory{
		vectors:        vectors,
		embedder:       embedder,
		provenance:     provenance,
		backendTimeout: DefaultBackendTimeout,
		now:            time.Now,
	}
}

// SetBackendTimeout overrides the per-attempt backend call timeout.
func (m *EpisodicMemory) SetBackendTimeout(d time.Duration) {
	if d > 0 {
		m.backendTimeout = d
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Consolidate embeds the task query, persists the record, and returns its
// fresh id.
func (m *EpisodicMemory) Consolidate(ctx context.Context, rec model.EpisodicRecord) (string, error) {
	if rec.TaskQuery == "" {
		return "", &model.ValidationError{Field: "record.task_query", Message: "is required"}
	}
	if rec.Score < 0 || rec.Score > 1 {
		return "", &model.ValidationError{Field: "record.score", Message: "must be in [0, 1]"}
	}

	vecs, err := m.embedder.EmbedTexts(ctx, []string{rec.TaskQuery})
	if err != nil {
		return "", err
	}

	now := unixSeconds(m.now())
	rec.ID = uuid.NewString()
	rec.Embedding = vecs[0]
	rec.CreatedAt = now
	rec.LastAccessedAt = now
	rec.AccessCount = 0
	if rec.Provenance.RecordedAt == 0 {
		rec.Provenance.RecordedAt = now
	}

	doc := registryvector.Document{ID: rec.ID, Embedding: rec.Embedding, Payload: model.FieldMap(rec)}
	err = withBackendRetry(ctx, "vector", m.backendTimeout, func(ctx context.Context) error {
		return m.vectors.Upsert(ctx, registryvector.CollectionEpisodic, []registryvector.Document{doc})
	})
	if err != nil {
		return "", err
	}
	if err := m.provenance.Record(ctx, model.MemoryTypeEpisodic, rec.ID, rec.Provenance); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Retrieve returns up to limit records for a text, vector, or metadata
// query, ranked by descending cosine similarity with ties broken by
// descending score then ascending creation time. Returned records reflect
// the access-stat update performed by this retrieval.
func (m *EpisodicMemory) Retrieve(ctx context.Context, query model.Query, limit int) ([]model.EpisodicRecord, error) {
	limit, err := model.NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}

	var records []model.EpisodicRecord
	switch query.Kind {
	case model.QueryText:
		vecs, err := m.embedder.EmbedTexts(ctx, []string{query.Text})
		if err != nil {
			return nil, err
		}
		records, err = m.searchByVector(ctx, vecs[0], limit)
		if err != nil {
			return nil, err
		}
	case model.QueryVector:
		if len(query.Vector) != m.embedder.Dimension() {
			return nil, &model.ValidationError{Field: "query.vector", Message: "dimension mismatch"}
		}
		records, err = m.searchByVector(ctx, query.Vector, limit)
		if err != nil {
			return nil, err
		}
	case model.QueryMetadata:
		records, err = m.searchByMetadata(ctx, query.Metadata, limit)
		if err != nil {
			return nil, err
		}
	}

	touched := make([]model.EpisodicRecord, 0, len(records))
	for _, rec := range records {
		t, err := m.touch(ctx, rec)
		if err != nil {
			return nil, err
		}
		touched = append(touched, t)
	}
	observeRetrieval(model.MemoryTypeEpisodic, len(touched))
	return touched, nil
}

type scoredRecord struct {
	record     model.EpisodicRecord
	similarity float64
}

func (m *EpisodicMemory) searchByVector(ctx context.Context, embedding []float32, limit int) ([]model.EpisodicRecord, error) {
	// Over-fetch so similarity ties can be re-ranked by score and age.
	fetch := limit * 4
	if fetch > 200 {
		fetch = 200
	}

	var results []registryvector.SearchResult
	err := withBackendRetry(ctx, "vector", m.backendTimeout, func(ctx context.Context) error {
		var searchErr error
		results, searchErr = m.vectors.Search(ctx, registryvector.CollectionEpisodic, embedding, fetch)
		return searchErr
	})
	if err != nil {
		return nil, err
	}

	scored := make([]scoredRecord, 0, len(results))
	for _, r := range results {
		rec, err := episodicFromPayload(r.Payload)
		if err != nil {
			continue
		}
		scored = append(scored, scoredRecord{record: rec, similarity: r.Score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].similarity != scored[j].similarity {
			return scored[i].similarity > scored[j].similarity
		}
		if scored[i].record.Score != scored[j].record.Score {
			return scored[i].record.Score > scored[j].record.Score
		}
		return scored[i].record.CreatedAt < scored[j].record.CreatedAt
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]model.EpisodicRecord, len(scored))
	for i, s := range scored {
		out[i] = s.record
	}
	return out, nil
}

func (m *EpisodicMemory) searchByMetadata(ctx context.Context, filter map[string]any, limit int) ([]model.EpisodicRecord, error) {
	records, err := m.All(ctx)
	if err != nil {
		return nil, err
	}
	var matched []model.EpisodicRecord
	for _, rec := range records {
		if model.MatchesMetadata(model.FieldMap(rec), filter) {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Score != matched[j].Score {
			return matched[i].Score > matched[j].Score
		}
		return matched[i].CreatedAt < matched[j].CreatedAt
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// touch bumps access stats through the per-record write path and returns
// the updated snapshot.
func (m *EpisodicMemory) touch(ctx context.Context, rec model.EpisodicRecord) (model.EpisodicRecord, error) {
	l := m.accessMu.lock(rec.ID)
	defer l.Unlock()

	// Re-read under the lock so concurrent retrievals don't lose counts.
	current, err := m.get(ctx, rec.ID)
	if err != nil {
		current = rec
	}
	current.LastAccessedAt = unixSeconds(m.now())
	current.AccessCount++

	doc := registryvector.Document{ID: current.ID, Embedding: current.Embedding, Payload: model.FieldMap(current)}
	err = withBackendRetry(ctx, "vector", m.backendTimeout, func(ctx context.Context) error {
		return m.vectors.Upsert(ctx, registryvector.CollectionEpisodic, []registryvector.Document{doc})
	})
	if err != nil {
		return model.EpisodicRecord{}, err
	}
	return current, nil
}

func (m *EpisodicMemory) get(ctx context.Context, id string) (model.EpisodicRecord, error) {
	docs, err := m.vectors.Scroll(ctx, registryvector.CollectionEpisodic)
	if err != nil {
		return model.EpisodicRecord{}, err
	}
	for _, d := range docs {
		if d.ID == id {
			return episodicFromPayload(d.Payload)
		}
	}
	return model.EpisodicRecord{}, &model.NotFoundError{Resource: "episodic record", ID: id}
}

// All returns every stored record. Used by metadata filters and the
// forgetting pass.
func (m *EpisodicMemory) All(ctx context.Context) ([]model.EpisodicRecord, error) {
	var docs []registryvector.Document
	err := withBackendRetry(ctx, "vector", m.backendTimeout, func(ctx context.Context) error {
		var scrollErr error
		docs, scrollErr = m.vectors.Scroll(ctx, registryvector.CollectionEpisodic)
		return scrollErr
	})
	if err != nil {
		return nil, err
	}
	records := make([]model.EpisodicRecord, 0, len(docs))
	for _, d := range docs {
		rec, err := episodicFromPayload(d.Payload)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Forget deletes all records matching the predicate and returns how many
// were removed. Running it twice removes the same set and returns 0 the
// second time.
func (m *EpisodicMemory) Forget(ctx context.Context, pred model.ForgetPredicate) (int, error) {
	if pred.IsEmpty() {
		return 0, nil
	}
	records, err := m.All(ctx)
	if err != nil {
		return 0, err
	}

	idSet := make(map[string]bool, len(pred.IDs))
	for _, id := range pred.IDs {
		idSet[id] = true
	}
	now := unixSeconds(m.now())

	var doomed []string
	for _, rec := range records {
		if len(pred.IDs) > 0 && !idSet[rec.ID] {
			continue
		}
		if pred.OlderThanSecs != nil && now-rec.CreatedAt <= *pred.OlderThanSecs {
			continue
		}
		if len(pred.Metadata) > 0 && !model.MatchesMetadata(model.FieldMap(rec), pred.Metadata) {
			continue
		}
		doomed = append(doomed, rec.ID)
	}
	return len(doomed), m.Remove(ctx, doomed)
}

// Remove deletes records by id along with their provenance.
func (m *EpisodicMemory) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := withBackendRetry(ctx, "vector", m.backendTimeout, func(ctx context.Context) error {
		return m.vectors.Delete(ctx, registryvector.CollectionEpisodic, ids)
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := m.provenance.Remove(ctx, model.MemoryTypeEpisodic, id); err != nil {
			return err
		}
	}
	return nil
}

// Provenance returns the lineage recorded at consolidation.
func (m *EpisodicMemory) Provenance(ctx context.Context, id string) (model.Provenance, error) {
	return m.provenance.Lookup(ctx, model.MemoryTypeEpisodic, id)
}

func episodicFromPayload(payload map[string]any) (model.EpisodicRecord, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return model.EpisodicRecord{}, err
	}
	var rec model.EpisodicRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.EpisodicRecord{}, err
	}
	return rec, nil
}
