package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint returns a deterministic hash of the normalized query context.
// Object keys are sorted recursively so that semantically equal contexts map
// to the same fingerprint regardless of field order.
func Fingerprint(context any) string {
	sum := sha256.Sum256([]byte(CanonicalJSON(context)))
	return hex.EncodeToString(sum[:])
}

// CanonicalJSON renders a value as JSON with object keys sorted at every
// level. Values that arrived through encoding/json decode to
// map[string]any / []any / float64 / string / bool / nil, which is the set
// handled here; anything else is marshalled first.
func CanonicalJSON(v any) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			key, _ := json.Marshal(k)
			b.Write(key)
			b.WriteByte(':')
			writeCanonical(b, t[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')
	case string, bool, float64, float32, int, int64:
		enc, _ := json.Marshal(t)
		b.Write(enc)
	default:
		// Structs and other concrete types: normalize through a JSON
		// round-trip so key ordering is canonical.
		data, err := json.Marshal(t)
		if err != nil {
			fmt.Fprintf(b, "%q", fmt.Sprint(t))
			return
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			b.Write(data)
			return
		}
		writeCanonical(b, generic)
	}
}
