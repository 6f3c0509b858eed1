package model

// Memory type names used for dispatch, provenance keys, and metric labels.
const (
	MemoryTypeEpisodic   = "episodic"
	MemoryTypeSemantic   = "semantic"
	MemoryTypeTemporal   = "temporal"
	MemoryTypeProcedural = "procedural"
	MemoryTypeEvaluator  = "evaluator"
)

// MemoryTypes lists every memory type the service persists.
var MemoryTypes = []string{
	MemoryTypeEpisodic,
	MemoryTypeSemantic,
	MemoryTypeTemporal,
	MemoryTypeProcedural,
	MemoryTypeEvaluator,
}

// IsMemoryType reports whether s names a known memory type.
func IsMemoryType(s string) bool {
	for _, t := range MemoryTypes {
		if t == s {
			return true
		}
	}
	return false
}

// Provenance records who wrote a record, when, and what it was derived from.
type Provenance struct {
	Source     string   `json:"source"`
	RecordedAt float64  `json:"recorded_at"`
	ParentIDs  []string `json:"parent_ids,omitempty"`
}

// EpisodicRecord is one completed task experience, indexed by an embedding
// of its task query.
type EpisodicRecord struct {
	ID             string     `json:"id"`
	TaskQuery      string     `json:"task_query"`
	Outcome        string     `json:"outcome"`
	Plan           any        `json:"plan,omitempty"`
	Score          float64    `json:"score"`
	Embedding      []float32  `json:"embedding,omitempty"`
	CreatedAt      float64    `json:"created_at"`
	LastAccessedAt float64    `json:"last_accessed_at"`
	AccessCount    int        `json:"access_count"`
	Provenance     Provenance `json:"provenance"`
}

// SemanticTriple is one (subject, predicate, object) fact. Two writes of the
// same triple collapse to a single relation.
type SemanticTriple struct {
	Subject    string     `json:"subject"`
	Predicate  string     `json:"predicate"`
	Object     string     `json:"object"`
	Confidence *float64   `json:"confidence,omitempty"`
	Provenance Provenance `json:"provenance"`
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// TemporalFact is one bitemporal assertion. New versions of the same
// (subject, predicate) append with their own tx_time; nothing is overwritten.
type TemporalFact struct {
	ID         string     `json:"id"`
	Subject    string     `json:"subject"`
	Predicate  string     `json:"predicate"`
	Object     string     `json:"object"`
	Value      *string    `json:"value,omitempty"`
	Location   *GeoPoint  `json:"location,omitempty"`
	ValidFrom  float64    `json:"valid_from"`
	ValidTo    *float64   `json:"valid_to,omitempty"`
	TxTime     float64    `json:"tx_time"`
	Provenance Provenance `json:"provenance"`
}

// ValidAt reports whether the fact's validity interval contains t.
// A fact with ValidTo == ValidFrom is valid only at exactly that instant.
func (f *TemporalFact) ValidAt(t float64) bool {
	if t < f.ValidFrom {
		return false
	}
	return f.ValidTo == nil || t <= *f.ValidTo
}

// IntersectsWindow reports whether the validity interval intersects
// [from, to]. An open ValidTo is treated as +infinity.
func (f *TemporalFact) IntersectsWindow(from, to float64) bool {
	if f.ValidFrom > to {
		return false
	}
	return f.ValidTo == nil || *f.ValidTo >= from
}

// BoundingBox is a closed WGS84 rectangle. A zero-area box (point query)
// is legal.
type BoundingBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// Contains reports whether p lies within the closed box.
func (b BoundingBox) Contains(p GeoPoint) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon &&
		p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// Skill is one reusable policy, retrievable by vector similarity or metadata.
type Skill struct {
	ID            string         `json:"id"`
	Policy        any            `json:"skill_policy"`
	Representation string        `json:"skill_representation,omitempty"`
	Embedding     []float32      `json:"embedding,omitempty"`
	Metadata      map[string]any `json:"skill_metadata,omitempty"`
	CreatedAt     float64        `json:"created_at"`
	Provenance    Provenance     `json:"provenance"`
}

// EvaluatorCritique is one recorded critique keyed by a query fingerprint.
type EvaluatorCritique struct {
	ID          string     `json:"id"`
	Payload     any        `json:"critique_payload"`
	Fingerprint string     `json:"query_fingerprint"`
	CreatedAt   float64    `json:"created_at"`
	Provenance  Provenance `json:"provenance"`
}

// ForgetPredicate selects episodic records for deletion. Conditions are
// conjunctive; an empty predicate matches nothing.
type ForgetPredicate struct {
	IDs             []string       `json:"ids,omitempty"`
	OlderThanSecs   *float64       `json:"older_than_seconds,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// IsEmpty reports whether no condition is set.
func (p ForgetPredicate) IsEmpty() bool {
	return len(p.IDs) == 0 && p.OlderThanSecs == nil && len(p.Metadata) == 0
}

// Retrieval limit bounds shared by every retrieval surface.
const (
	DefaultRetrieveLimit = 5
	MaxRetrieveLimit     = 50
)

// NormalizeLimit applies the default and validates the [1, MaxRetrieveLimit]
// range. limit == 0 means unset.
func NormalizeLimit(limit int) (int, error) {
	if limit == 0 {
		return DefaultRetrieveLimit, nil
	}
	if limit < 1 || limit > MaxRetrieveLimit {
		return 0, &ValidationError{Field: "limit", Message: "must be between 1 and 50"}
	}
	return limit, nil
}
