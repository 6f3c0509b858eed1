package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	a := map[string]any{"task": "summarize", "nested": map[string]any{"x": float64(1), "y": "z"}}
	b := map[string]any{"nested": map[string]any{"y": "z", "x": float64(1)}, "task": "summarize"}
	require.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintDistinguishesValues(t *testing.T) {
	a := map[string]any{"task": "summarize"}
	b := map[string]any{"task": "translate"}
	require.NotEqual(t, Fingerprint(a), Fingerprint(b))
	require.NotEqual(t, Fingerprint(nil), Fingerprint(a))
}

func TestCanonicalJSON(t *testing.T) {
	v := map[string]any{"b": []any{float64(1), "two"}, "a": nil}
	require.Equal(t, `{"a":null,"b":[1,"two"]}`, CanonicalJSON(v))
}

func TestErrorCodeMapping(t *testing.T) {
	require.Equal(t, CodeValidation, ErrorCode(&ValidationError{Field: "f", Message: "m"}))
	require.Equal(t, CodeForbidden, ErrorCode(&ForbiddenError{}))
	require.Equal(t, CodeNotFound, ErrorCode(&NotFoundError{Resource: "r", ID: "x"}))
	require.Equal(t, CodeEmbedUnavailable, ErrorCode(&EmbedUnavailableError{}))
	require.Equal(t, CodeBackendUnavailable, ErrorCode(&BackendUnavailableError{Backend: "vector"}))
	require.Equal(t, CodeInternal, ErrorCode(assertionError("boom")))
}

type assertionError string

func (e assertionError) Error() string { return string(e) }
