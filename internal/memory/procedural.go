package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/adrianwedd/ltm-service/internal/model"
	registryembed "github.com/adrianwedd/ltm-service/internal/registry/embed"
	registrykv "github.com/adrianwedd/ltm-service/internal/registry/kv"
	registryvector "github.com/adrianwedd/ltm-service/internal/registry/vector"
)

// SkillInput is a skill as submitted for storage. Exactly one of Text or
// Vector must be supplied as the representation.
type SkillInput struct {
	Policy     any
	Text       string
	Vector     []float32
	Metadata   map[string]any
	Provenance model.Provenance
}

// ProceduralMemory stores reusable skills, retrievable by vector similarity
// or metadata filter. Policies are additionally persisted as binary-safe
// blobs in the key-value store.
type ProceduralMemory struct {
	vectors        registryvector.VectorStore
	embedder       registryembed.Embedder
	kv             registrykv.KeyValueStore
	provenance     *ProvenanceTracker
	backendTimeout time.Duration
	now            func() time.Time
}

// NewProceduralMemory wires the procedural module onto its adapters.
func NewProceduralMemory(vectors registryvector.VectorStore, embedder registryembed.Embedder, kv registrykv.KeyValueStore, provenance *ProvenanceTracker) *ProceduralMemory {
	return &ProceduralMemory{
		vectors:        vectors,
		embedder:       embedder,
		kv:             kv,
		provenance:     provenance,
		backendTimeout: DefaultBackendTimeout,
		now:            time.Now,
	}
}

// SetBackendTimeout overrides the per-attempt backend call timeout.
func (m *ProceduralMemory) SetBackendTimeout(d time.Duration) {
	if d > 0 {
		m.backendTimeout = d
	}
}

// Store persists a skill and returns its fresh id. A text representation is
// embedded on ingest and the derived vector stored alongside; a vector
// representation must match the deployment's embedding dimension.
func (m *ProceduralMemory) Store(ctx context.Context, in SkillInput) (string, error) {
	hasText := in.Text != ""
	hasVector := len(in.Vector) > 0
	if hasText == hasVector {
		return "", &model.ValidationError{Field: "skill_representation", Message: "exactly one of text or vector must be supplied"}
	}

	embedding := in.Vector
	if hasText {
		vecs, err := m.embedder.EmbedTexts(ctx, []string{in.Text})
		if err != nil {
			return "", err
		}
		embedding = vecs[0]
	} else if len(in.Vector) != m.embedder.Dimension() {
		return "", &model.ValidationError{Field: "skill_representation", Message: "vector dimension mismatch"}
	}

	now := unixSeconds(m.now())
	skill := model.Skill{
		ID:             uuid.NewString(),
		Policy:         in.Policy,
		Representation: in.Text,
		Embedding:      embedding,
		Metadata:       in.Metadata,
		CreatedAt:      now,
		Provenance:     in.Provenance,
	}
	if skill.Provenance.RecordedAt == 0 {
		skill.Provenance.RecordedAt = now
	}

	policy, err := json.Marshal(in.Policy)
	if err != nil {
		return "", fmt.Errorf("marshal skill policy: %w", err)
	}

	doc := registryvector.Document{ID: skill.ID, Embedding: embedding, Payload: model.FieldMap(skill)}
	err = withBackendRetry(ctx, "vector", m.backendTimeout, func(ctx context.Context) error {
		return m.vectors.Upsert(ctx, registryvector.CollectionSkills, []registryvector.Document{doc})
	})
	if err != nil {
		return "", err
	}
	if err := m.kv.Put(ctx, registrykv.BucketSkills, skill.ID, policy); err != nil {
		return "", err
	}
	if err := m.provenance.Record(ctx, model.MemoryTypeProcedural, skill.ID, skill.Provenance); err != nil {
		return "", err
	}
	return skill.ID, nil
}

// VectorQuery retrieves skills by text or vector similarity; a metadata
// query routes to MetadataQuery. Ordered by descending cosine similarity,
// ties by descending creation time.
func (m *ProceduralMemory) VectorQuery(ctx context.Context, query model.Query, limit int) ([]model.Skill, error) {
	limit, err := model.NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}

	var embedding []float32
	switch query.Kind {
	case model.QueryText:
		vecs, err := m.embedder.EmbedTexts(ctx, []string{query.Text})
		if err != nil {
			return nil, err
		}
		embedding = vecs[0]
	case model.QueryVector:
		if len(query.Vector) != m.embedder.Dimension() {
			return nil, &model.ValidationError{Field: "query.vector", Message: "dimension mismatch"}
		}
		embedding = query.Vector
	case model.QueryMetadata:
		return m.MetadataQuery(ctx, query.Metadata, limit)
	}

	fetch := limit * 4
	if fetch > 200 {
		fetch = 200
	}
	var results []registryvector.SearchResult
	err = withBackendRetry(ctx, "vector", m.backendTimeout, func(ctx context.Context) error {
		var searchErr error
		results, searchErr = m.vectors.Search(ctx, registryvector.CollectionSkills, embedding, fetch)
		return searchErr
	})
	if err != nil {
		return nil, err
	}

	type scoredSkill struct {
		skill      model.Skill
		similarity float64
	}
	scored := make([]scoredSkill, 0, len(results))
	for _, r := range results {
		skill, err := skillFromPayload(r.Payload)
		if err != nil {
			continue
		}
		scored = append(scored, scoredSkill{skill: skill, similarity: r.Score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].similarity != scored[j].similarity {
			return scored[i].similarity > scored[j].similarity
		}
		return scored[i].skill.CreatedAt > scored[j].skill.CreatedAt
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]model.Skill, len(scored))
	for i, s := range scored {
		out[i] = s.skill
	}
	observeRetrieval(model.MemoryTypeProcedural, len(out))
	return out, nil
}

// MetadataQuery retrieves skills whose skill_metadata satisfies every
// key = value pair in filter. Unknown keys match nothing.
func (m *ProceduralMemory) MetadataQuery(ctx context.Context, filter map[string]any, limit int) ([]model.Skill, error) {
	limit, err := model.NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	if len(filter) == 0 {
		return nil, &model.ValidationError{Field: "filter", Message: "must have at least one key"}
	}

	var docs []registryvector.Document
	err = withBackendRetry(ctx, "vector", m.backendTimeout, func(ctx context.Context) error {
		var scrollErr error
		docs, scrollErr = m.vectors.Scroll(ctx, registryvector.CollectionSkills)
		return scrollErr
	})
	if err != nil {
		return nil, err
	}

	var matched []model.Skill
	for _, d := range docs {
		skill, err := skillFromPayload(d.Payload)
		if err != nil {
			continue
		}
		if model.MatchesMetadata(skill.Metadata, filter) {
			matched = append(matched, skill)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt > matched[j].CreatedAt })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	observeRetrieval(model.MemoryTypeProcedural, len(matched))
	return matched, nil
}

// Provenance returns the lineage recorded at store time.
func (m *ProceduralMemory) Provenance(ctx context.Context, id string) (model.Provenance, error) {
	return m.provenance.Lookup(ctx, model.MemoryTypeProcedural, id)
}

func skillFromPayload(payload map[string]any) (model.Skill, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return model.Skill{}, err
	}
	var skill model.Skill
	if err := json.Unmarshal(data, &skill); err != nil {
		return model.Skill{}, err
	}
	return skill, nil
}
