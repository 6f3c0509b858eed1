package memory

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/adrianwedd/ltm-service/internal/model"
)

// ForgettingPolicy controls the hybrid decay of episodic records.
type ForgettingPolicy struct {
	// TTL is the access-age threshold that makes a record a removal
	// candidate.
	TTL time.Duration
	// Utility weights: utility = Alpha·score + Beta·log(1+access_count)
	// − Gamma·age_days. Candidates below Threshold are removed.
	Alpha     float64
	Beta      float64
	Gamma     float64
	Threshold float64
}

// DefaultForgettingPolicy returns the documented defaults.
func DefaultForgettingPolicy() ForgettingPolicy {
	return ForgettingPolicy{
		TTL:       30 * 24 * time.Hour,
		Alpha:     0.5,
		Beta:      0.3,
		Gamma:     0.2,
		Threshold: 0,
	}
}

// Utility computes a record's survival score at the given wall-clock time.
func (p ForgettingPolicy) Utility(rec model.EpisodicRecord, now float64) float64 {
	ageDays := (now - rec.CreatedAt) / 86400
	return p.Alpha*rec.Score + p.Beta*math.Log1p(float64(rec.AccessCount)) - p.Gamma*ageDays
}

// ForgettingEngine prunes episodic records on an external tick. At most one
// pass executes at a time; removal is driven by the utility computation
// over the live store, so a pass that failed midway is idempotent on retry.
// Other memory modules are never touched.
type ForgettingEngine struct {
	episodic *EpisodicMemory
	policy   ForgettingPolicy
	mu       sync.Mutex
	now      func() time.Time
}

// NewForgettingEngine creates an engine over the episodic module.
func NewForgettingEngine(episodic *EpisodicMemory, policy ForgettingPolicy) *ForgettingEngine {
	return &ForgettingEngine{episodic: episodic, policy: policy, now: time.Now}
}

// RunOnce performs a single forgetting pass and returns how many records it
// removed. If a pass is already running, the tick is skipped.
func (e *ForgettingEngine) RunOnce(ctx context.Context) (int, error) {
	if !e.mu.TryLock() {
		log.Debug("Forgetting: pass already running, tick skipped")
		return 0, nil
	}
	defer e.mu.Unlock()

	records, err := e.episodic.All(ctx)
	if err != nil {
		return 0, err
	}
	now := unixSeconds(e.now())

	var doomed []string
	for _, rec := range records {
		if now-rec.LastAccessedAt <= e.policy.TTL.Seconds() {
			continue
		}
		if e.policy.Utility(rec, now) < e.policy.Threshold {
			doomed = append(doomed, rec.ID)
		}
	}
	if len(doomed) == 0 {
		return 0, nil
	}
	if err := e.episodic.Remove(ctx, doomed); err != nil {
		return 0, err
	}
	log.Info("Forgetting: pass completed", "scanned", len(records), "removed", len(doomed))
	return len(doomed), nil
}
