// Package jsonval provides structural helpers for JSON-shaped values:
// stable stringification, order-independent equality, type-aware deep
// cloning, and scalar coercion. Diffing and idempotency hashing must share
// this implementation so their notions of equality never diverge.
package jsonval

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Stringify renders a value as a canonical string. Object keys are sorted
// recursively, so two objects that differ only in field order produce the
// same output.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			encoded, _ := json.Marshal(key)
			b.Write(encoded)
			b.WriteByte(':')
			b.WriteString(Stringify(v[key]))
		}
		b.WriteByte('}')
		return b.String()
	case []any:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(Stringify(item))
		}
		b.WriteByte(']')
		return b.String()
	case string:
		encoded, _ := json.Marshal(v)
		return string(encoded)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "null"
		}
		return string(encoded)
	}
}

// Equal reports whether two values are structurally equal, ignoring object
// key order at every nesting level.
func Equal(a, b any) bool {
	return Stringify(a) == Stringify(b)
}

// Clone returns a deep copy of a JSON-shaped value. Maps and slices are
// copied recursively; scalars are returned as-is.
func Clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Clone(item)
		}
		return out
	default:
		return value
	}
}

// Number coerces a value to a float64. Strings are parsed; anything that is
// not finite-numeric reports false.
func Number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// Text coerces a scalar to its trimmed string form. Objects, arrays and nil
// coerce to the empty string.
func Text(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
