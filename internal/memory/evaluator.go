package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/adrianwedd/ltm-service/internal/model"
	registrykv "github.com/adrianwedd/ltm-service/internal/registry/kv"
)

// EvaluatorForgetPredicate selects critiques for deletion. Conditions are
// conjunctive; an empty predicate matches nothing.
type EvaluatorForgetPredicate struct {
	IDs           []string `json:"ids,omitempty"`
	QueryContext  any      `json:"query,omitempty"`
	OlderThanSecs *float64 `json:"older_than_seconds,omitempty"`
}

// IsEmpty reports whether no condition is set.
func (p EvaluatorForgetPredicate) IsEmpty() bool {
	return len(p.IDs) == 0 && p.QueryContext == nil && p.OlderThanSecs == nil
}

// EvaluatorMemory persists critiques keyed by a deterministic fingerprint
// of their normalized query context.
type EvaluatorMemory struct {
	kv         registrykv.KeyValueStore
	provenance *ProvenanceTracker
	now        func() time.Time
}

// NewEvaluatorMemory wires the evaluator module onto the key-value store.
func NewEvaluatorMemory(kv registrykv.KeyValueStore, provenance *ProvenanceTracker) *EvaluatorMemory {
	return &EvaluatorMemory{kv: kv, provenance: provenance, now: time.Now}
}

// Store persists a critique and returns its fresh id.
func (m *EvaluatorMemory) Store(ctx context.Context, payload any, queryContext any, prov model.Provenance) (string, error) {
	if payload == nil {
		return "", &model.ValidationError{Field: "critique_payload", Message: "is required"}
	}
	now := unixSeconds(m.now())
	critique := model.EvaluatorCritique{
		ID:          uuid.NewString(),
		Payload:     payload,
		Fingerprint: model.Fingerprint(queryContext),
		CreatedAt:   now,
		Provenance:  prov,
	}
	if critique.Provenance.RecordedAt == 0 {
		critique.Provenance.RecordedAt = now
	}

	data, err := json.Marshal(critique)
	if err != nil {
		return "", fmt.Errorf("marshal critique: %w", err)
	}
	if err := m.kv.Put(ctx, registrykv.BucketCritiques, critique.ID, data); err != nil {
		return "", err
	}
	if err := m.provenance.Record(ctx, model.MemoryTypeEvaluator, critique.ID, critique.Provenance); err != nil {
		return "", err
	}
	return critique.ID, nil
}

// Retrieve returns up to limit critiques whose fingerprint matches that of
// the query context, newest first.
func (m *EvaluatorMemory) Retrieve(ctx context.Context, queryContext any, limit int) ([]model.EvaluatorCritique, error) {
	limit, err := model.NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	fingerprint := model.Fingerprint(queryContext)

	critiques, err := m.all(ctx)
	if err != nil {
		return nil, err
	}
	var matched []model.EvaluatorCritique
	for _, c := range critiques {
		if c.Fingerprint == fingerprint {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt != matched[j].CreatedAt {
			return matched[i].CreatedAt > matched[j].CreatedAt
		}
		return matched[i].ID < matched[j].ID
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	observeRetrieval(model.MemoryTypeEvaluator, len(matched))
	return matched, nil
}

// Forget deletes critiques matching the predicate and returns how many were
// removed.
func (m *EvaluatorMemory) Forget(ctx context.Context, pred EvaluatorForgetPredicate) (int, error) {
	if pred.IsEmpty() {
		return 0, nil
	}
	critiques, err := m.all(ctx)
	if err != nil {
		return 0, err
	}

	idSet := make(map[string]bool, len(pred.IDs))
	for _, id := range pred.IDs {
		idSet[id] = true
	}
	var fingerprint string
	if pred.QueryContext != nil {
		fingerprint = model.Fingerprint(pred.QueryContext)
	}
	now := unixSeconds(m.now())

	removed := 0
	for _, c := range critiques {
		if len(pred.IDs) > 0 && !idSet[c.ID] {
			continue
		}
		if fingerprint != "" && c.Fingerprint != fingerprint {
			continue
		}
		if pred.OlderThanSecs != nil && now-c.CreatedAt <= *pred.OlderThanSecs {
			continue
		}
		if err := m.kv.Delete(ctx, registrykv.BucketCritiques, c.ID); err != nil {
			return removed, err
		}
		if err := m.provenance.Remove(ctx, model.MemoryTypeEvaluator, c.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Provenance returns the lineage recorded at store time.
func (m *EvaluatorMemory) Provenance(ctx context.Context, id string) (model.Provenance, error) {
	return m.provenance.Lookup(ctx, model.MemoryTypeEvaluator, id)
}

func (m *EvaluatorMemory) all(ctx context.Context) ([]model.EvaluatorCritique, error) {
	entries, err := m.kv.List(ctx, registrykv.BucketCritiques)
	if err != nil {
		return nil, err
	}
	critiques := make([]model.EvaluatorCritique, 0, len(entries))
	for _, data := range entries {
		var c model.EvaluatorCritique
		if err := json.Unmarshal(data, &c); err != nil {
			continue
		}
		critiques = append(critiques, c)
	}
	return critiques, nil
}
