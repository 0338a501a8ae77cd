package jsonval

import "encoding/json"

// Value wraps an opaque JSON-shaped payload with typed accessors. Event
// payloads and row cells are carried as Values so callers never reach into
// raw any chains.
type Value struct {
	raw any
}

// V wraps a raw JSON-shaped value.
func V(raw any) Value {
	return Value{raw: raw}
}

// Raw returns the underlying value.
func (v Value) Raw() any {
	return v.raw
}

// IsNil reports whether the payload is absent.
func (v Value) IsNil() bool {
	return v.raw == nil
}

// Object returns the payload as a JSON object when it is one.
func (v Value) Object() (map[string]any, bool) {
	obj, ok := v.raw.(map[string]any)
	return obj, ok
}

// Array returns the payload as a JSON array when it is one.
func (v Value) Array() ([]any, bool) {
	arr, ok := v.raw.([]any)
	return arr, ok
}

// Number coerces the payload to a float64.
func (v Value) Number() (float64, bool) {
	return Number(v.raw)
}

// Text coerces a scalar payload to its trimmed string form.
func (v Value) Text() string {
	return Text(v.raw)
}

// Field reads a named field from an object payload.
func (v Value) Field(name string) (any, bool) {
	obj, ok := v.Object()
	if !ok {
		return nil, false
	}
	item, ok := obj[name]
	return item, ok
}

// FieldText resolves the first non-empty scalar among the named fields.
func (v Value) FieldText(names ...string) string {
	for _, name := range names {
		if item, ok := v.Field(name); ok {
			if text := Text(item); text != "" {
				return text
			}
		}
	}
	return ""
}

// Clone returns a deep copy of the payload.
func (v Value) Clone() Value {
	return Value{raw: Clone(v.raw)}
}

// Stable returns the canonical stringification of the payload.
func (v Value) Stable() string {
	return Stringify(v.raw)
}

// MarshalJSON encodes the underlying payload.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.raw)
}

// UnmarshalJSON decodes into the underlying payload.
func (v *Value) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &v.raw)
}
