package model

import (
	"encoding/json"
	"fmt"
)

// QueryKind identifies which variant of a retrieval query was supplied.
type QueryKind int

const (
	// QueryText is a natural-language query that is embedded before search.
	QueryText QueryKind = iota
	// QueryVector is a pre-computed embedding of dimension D.
	QueryVector
	// QueryMetadata is a conjunction of field = value matches.
	QueryMetadata
)

// Query is the closed sum of the three retrieval query variants. The wire
// shape is an object holding exactly one of "text", "vector", or "metadata";
// for back-compat, an object with none of those keys is taken whole as a
// metadata mapping, a bare string as text, and a bare array as a vector.
type Query struct {
	Kind     QueryKind
	Text     string
	Vector   []float32
	Metadata map[string]any
}

// UnmarshalJSON dispatches on the wire shape described above.
func (q *Query) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		q.Kind = QueryText
		q.Text = v
		return nil
	case []any:
		vec, err := toVector(v)
		if err != nil {
			return &ValidationError{Field: "query", Message: err.Error()}
		}
		q.Kind = QueryVector
		q.Vector = vec
		return nil
	case map[string]any:
		if text, ok := v["text"]; ok {
			s, ok := text.(string)
			if !ok {
				return &ValidationError{Field: "query.text", Message: "must be a string"}
			}
			q.Kind = QueryText
			q.Text = s
			return nil
		}
		if vector, ok := v["vector"]; ok {
			arr, ok := vector.([]any)
			if !ok {
				return &ValidationError{Field: "query.vector", Message: "must be an array of numbers"}
			}
			vec, err := toVector(arr)
			if err != nil {
				return &ValidationError{Field: "query.vector", Message: err.Error()}
			}
			q.Kind = QueryVector
			q.Vector = vec
			return nil
		}
		if metadata, ok := v["metadata"]; ok {
			m, ok := metadata.(map[string]any)
			if !ok {
				return &ValidationError{Field: "query.metadata", Message: "must be an object"}
			}
			q.Kind = QueryMetadata
			q.Metadata = m
			return nil
		}
		q.Kind = QueryMetadata
		q.Metadata = v
		return nil
	default:
		return &ValidationError{Field: "query", Message: "must be a string, array, or object"}
	}
}

func toVector(arr []any) ([]float32, error) {
	if len(arr) == 0 {
		return nil, fmt.Errorf("vector must be non-empty")
	}
	vec := make([]float32, len(arr))
	for i, e := range arr {
		f, ok := e.(float64)
		if !ok {
			return nil, fmt.Errorf("element %d is not a number", i)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

// MatchesMetadata reports whether every key in filter equals the same key in
// fields. Values are compared through their canonical JSON encoding so that
// numbers survive the any round-trip.
func MatchesMetadata(fields map[string]any, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := fields[k]
		if !ok {
			return false
		}
		if CanonicalJSON(got) != CanonicalJSON(want) {
			return false
		}
	}
	return true
}

// FieldMap converts a struct record to its JSON field map for metadata
// matching.
func FieldMap(record any) map[string]any {
	data, err := json.Marshal(record)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
