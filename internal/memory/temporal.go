package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adrianwedd/ltm-service/internal/model"
	registrygraph "github.com/adrianwedd/ltm-service/internal/registry/graph"
)

// txEpsilon separates tx_time values when two writes to the same pair land
// within clock resolution.
const txEpsilon = 1e-6

// PairFilter names one (subject, predicate) group for a snapshot query.
type PairFilter struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
}

// TemporalMemory manages bitemporal facts. Writes to the same
// (subject, predicate) are serialized so every persisted version has a
// strictly greater tx_time than the previous one for that pair.
type TemporalMemory struct {
	graph          registrygraph.GraphStore
	provenance     *ProvenanceTracker
	pairLocks      keyedMutex
	txMu           sync.Mutex
	lastTx         map[string]float64
	backendTimeout time.Duration
	now            func() time.Time
}

// NewTemporalMemory wires the temporal module onto the graph store.
func NewTemporalMemory(graph registrygraph.GraphStore, provenance *ProvenanceTracker) *TemporalMemory {
	return &TemporalMemory{
		graph:          graph,
		provenance:     provenance,
		lastTx:         make(map[string]float64),
		backendTimeout: DefaultBackendTimeout,
		now:            time.Now,
	}
}

// SetBackendTimeout overrides the per-call graph store timeout.
func (m *TemporalMemory) SetBackendTimeout(d time.Duration) {
	if d > 0 {
		m.backendTimeout = d
	}
}

func (m *TemporalMemory) graphCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.backendTimeout)
}

func pairKey(subject, predicate string) string {
	return subject + "\x00" + predicate
}

// Consolidate appends a new fact version with a server-assigned tx_time.
// Prior versions are never overwritten.
func (m *TemporalMemory) Consolidate(ctx context.Context, fact model.TemporalFact) (string, error) {
	if fact.Subject == "" {
		return "", &model.ValidationError{Field: "subject", Message: "is required"}
	}
	if fact.Predicate == "" {
		return "", &model.ValidationError{Field: "predicate", Message: "is required"}
	}
	if fact.ValidTo != nil && *fact.ValidTo < fact.ValidFrom {
		return "", &model.ValidationError{Field: "valid_to", Message: "must be >= valid_from"}
	}

	key := pairKey(fact.Subject, fact.Predicate)
	l := m.pairLocks.lock(key)
	defer l.Unlock()

	fact.ID = uuid.NewString()
	fact.TxTime = m.nextTxTime(key)
	if fact.Provenance.RecordedAt == 0 {
		fact.Provenance.RecordedAt = fact.TxTime
	}

	callCtx, cancel := m.graphCtx(ctx)
	err := m.graph.AppendFact(callCtx, fact)
	cancel()
	if err != nil {
		return "", err
	}
	if err := m.provenance.Record(ctx, model.MemoryTypeTemporal, fact.ID, fact.Provenance); err != nil {
		return "", err
	}
	return fact.ID, nil
}

// nextTxTime returns a wall-clock tx_time that is strictly greater than the
// last one assigned to the pair. Callers hold the pair lock.
func (m *TemporalMemory) nextTxTime(key string) float64 {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	tx := unixSeconds(m.now())
	if last, ok := m.lastTx[key]; ok && tx <= last {
		tx = last + txEpsilon
	}
	m.lastTx[key] = tx
	return tx
}

// SpatialQuery returns facts whose location lies within the closed bbox and
// whose validity interval intersects [from, to]. Facts without a location
// are excluded regardless of bbox. Ordered by ascending valid_from, then
// ascending tx_time.
func (m *TemporalMemory) SpatialQuery(ctx context.Context, bbox model.BoundingBox, from, to float64) ([]model.TemporalFact, error) {
	if bbox.MinLon > bbox.MaxLon {
		return nil, &model.ValidationError{Field: "bbox", Message: "min_lon must be <= max_lon"}
	}
	if bbox.MinLat > bbox.MaxLat {
		return nil, &model.ValidationError{Field: "bbox", Message: "min_lat must be <= max_lat"}
	}
	if to < from {
		return nil, &model.ValidationError{Field: "valid_to", Message: "must be >= valid_from"}
	}

	callCtx, cancel := m.graphCtx(ctx)
	facts, err := m.graph.Facts(callCtx, "", "")
	cancel()
	if err != nil {
		return nil, err
	}
	var matched []model.TemporalFact
	for _, f := range facts {
		if f.Location == nil {
			continue
		}
		if !bbox.Contains(*f.Location) {
			continue
		}
		if !f.IntersectsWindow(from, to) {
			continue
		}
		matched = append(matched, f)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].ValidFrom != matched[j].ValidFrom {
			return matched[i].ValidFrom < matched[j].ValidFrom
		}
		return matched[i].TxTime < matched[j].TxTime
	})
	observeRetrieval(model.MemoryTypeTemporal, len(matched))
	return matched, nil
}

// Snapshot answers, for each (subject, predicate) group in filter, the
// single fact with the largest tx_time <= txAt whose validity interval
// contains validAt. Groups with no such fact contribute nothing.
func (m *TemporalMemory) Snapshot(ctx context.Context, validAt, txAt float64, filter []PairFilter) ([]model.TemporalFact, error) {
	if len(filter) == 0 {
		return nil, &model.ValidationError{Field: "pairs", Message: "at least one (subject, predicate) pair is required"}
	}
	var out []model.TemporalFact
	for _, pair := range filter {
		if pair.Subject == "" || pair.Predicate == "" {
			return nil, &model.ValidationError{Field: "pairs", Message: "subject and predicate are required"}
		}
		callCtx, cancel := m.graphCtx(ctx)
		facts, err := m.graph.Facts(callCtx, pair.Subject, pair.Predicate)
		cancel()
		if err != nil {
			return nil, err
		}
		var best *model.TemporalFact
		for i := range facts {
			f := facts[i]
			if f.TxTime > txAt || !f.ValidAt(validAt) {
				continue
			}
			if best == nil || f.TxTime > best.TxTime {
				best = &f
			}
		}
		if best != nil {
			out = append(out, *best)
		}
	}
	observeRetrieval(model.MemoryTypeTemporal, len(out))
	return out, nil
}

// Provenance returns the lineage recorded at consolidation.
func (m *TemporalMemory) Provenance(ctx context.Context, id string) (model.Provenance, error) {
	return m.provenance.Lookup(ctx, model.MemoryTypeTemporal, id)
}
