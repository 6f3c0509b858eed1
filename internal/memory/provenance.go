package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adrianwedd/ltm-service/internal/model"
	registrykv "github.com/adrianwedd/ltm-service/internal/registry/kv"
)

// ProvenanceTracker persists per-record lineage keyed by memory type and
// record id.
type ProvenanceTracker struct {
	kv registrykv.KeyValueStore
}

// NewProvenanceTracker creates a tracker over the given key-value store.
func NewProvenanceTracker(kv registrykv.KeyValueStore) *ProvenanceTracker {
	return &ProvenanceTracker{kv: kv}
}

func provenanceKey(memoryType, id string) string {
	return memoryType + "/" + id
}

// Record stores the provenance written at consolidation time.
func (t *ProvenanceTracker) Record(ctx context.Context, memoryType, id string, p model.Provenance) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}
	return t.kv.Put(ctx, registrykv.BucketProvenance, provenanceKey(memoryType, id), data)
}

// Lookup returns the provenance for a record, or NotFound.
func (t *ProvenanceTracker) Lookup(ctx context.Context, memoryType, id string) (model.Provenance, error) {
	data, err := t.kv.Get(ctx, registrykv.BucketProvenance, provenanceKey(memoryType, id))
	if errors.Is(err, registrykv.ErrKeyNotFound) {
		return model.Provenance{}, &model.NotFoundError{Resource: memoryType + " provenance", ID: id}
	}
	if err != nil {
		return model.Provenance{}, err
	}
	var p model.Provenance
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Provenance{}, fmt.Errorf("unmarshal provenance: %w", err)
	}
	return p, nil
}

// Remove deletes the provenance entry for a destroyed record.
func (t *ProvenanceTracker) Remove(ctx context.Context, memoryType, id string) error {
	return t.kv.Delete(ctx, registrykv.BucketProvenance, provenanceKey(memoryType, id))
}
