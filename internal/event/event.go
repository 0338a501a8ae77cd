// Package event defines the canonical state-variable mutation event: a
// small, self-describing record with a deterministic idempotency key.
// Events are immutable once created; downstream stages never mutate them.
package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/tavernforge/statevar/internal/jsonval"
	apperrors "github.com/tavernforge/statevar/internal/platform/errors"
)

// Op identifies the mutation intent of an event.
type Op string

const (
	// OpSet overwrites a single field.
	OpSet Op = "set"
	// OpAdd applies a numeric delta to a field.
	OpAdd Op = "add"
	// OpPush appends one or more rows to a collection sheet.
	OpPush Op = "push"
	// OpDelete removes a field or row.
	OpDelete Op = "delete"
	// OpUpsert merges a full row payload.
	OpUpsert Op = "upsert"
)

// Ops lists the closed set of event operations.
var Ops = []Op{OpSet, OpAdd, OpPush, OpDelete, OpUpsert}

// IsValid reports whether the operation is a member of the closed set.
func (op Op) IsValid() bool {
	for _, known := range Ops {
		if op == known {
			return true
		}
	}
	return false
}

// ErrNotObject indicates Normalize received something other than an
// object-shaped event. This is the engine's only fail-fast path; every
// other malformed input degrades to a validation failure.
var ErrNotObject = apperrors.New(apperrors.CodeEventNotObject, "state variable event must be an object")

// Event is the atomic unit of mutation intent.
type Event struct {
	ID              string        `json:"event_id"`
	TurnID          string        `json:"turn_id"`
	Source          string        `json:"source"`
	Domain          string        `json:"domain"`
	EntityID        string        `json:"entity_id"`
	Path            string        `json:"path"`
	Op              Op            `json:"op"`
	Value           jsonval.Value `json:"value,omitempty"`
	ExpectedVersion *int64        `json:"expected_version,omitempty"`
	IdempotencyKey  string        `json:"idempotency_key"`
	CreatedAt       int64         `json:"created_at"`
}

// Normalization fallbacks for events created from sparse input.
const (
	fallbackTurn   = "turn-unknown"
	fallbackSource = "runtime"
	fallbackDomain = "unknown"
	fallbackEntity = "entity"
	fallbackPath   = "path"
)

func orFallback(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

// Signature builds the stable semantic signature of an event. The value is
// stringified with recursively sorted keys so field-order differences never
// change the signature.
func Signature(turnID, source, domain, entityID, path string, op Op, value jsonval.Value) string {
	normalizedOp := orFallback(string(op), string(OpUpsert))
	return strings.Join([]string{
		orFallback(turnID, fallbackTurn),
		orFallback(source, fallbackSource),
		orFallback(domain, fallbackDomain),
		orFallback(entityID, fallbackEntity),
		orFallback(path, fallbackPath),
		normalizedOp,
		value.Stable(),
	}, "::")
}

// BuildIdempotencyKey digests an event signature into the deterministic
// idempotency key used by the writer's dedup ledger.
func BuildIdempotencyKey(turnID, source, domain, entityID, path string, op Op, value jsonval.Value) string {
	sig := Signature(turnID, source, domain, entityID, path, op, value)
	return fmt.Sprintf("sv1-%016x", xxhash.Sum64String(sig))
}

func clampVersion(value float64) int64 {
	if value < 0 {
		return 0
	}
	return int64(value)
}

// New fills in the derivable fields of a partially specified event:
// event id, created-at, and idempotency key when absent. String fields are
// trimmed and given stable fallbacks so the signature is well defined even
// for sparse input.
func New(partial Event) Event {
	evt := Event{
		TurnID:   orFallback(partial.TurnID, fallbackTurn),
		Source:   orFallback(partial.Source, fallbackSource),
		Domain:   orFallback(partial.Domain, fallbackDomain),
		EntityID: orFallback(partial.EntityID, fallbackEntity),
		Path:     orFallback(partial.Path, fallbackPath),
		Op:       Op(orFallback(string(partial.Op), string(OpUpsert))),
		Value:    partial.Value,
	}
	if partial.ExpectedVersion != nil {
		expected := *partial.ExpectedVersion
		if expected < 0 {
			expected = 0
		}
		evt.ExpectedVersion = &expected
	}
	evt.CreatedAt = partial.CreatedAt
	if evt.CreatedAt < 0 {
		evt.CreatedAt = 0
	}
	if evt.CreatedAt == 0 {
		evt.CreatedAt = time.Now().UnixMilli()
	}
	evt.IdempotencyKey = strings.TrimSpace(partial.IdempotencyKey)
	if evt.IdempotencyKey == "" {
		evt.IdempotencyKey = BuildIdempotencyKey(evt.TurnID, evt.Source, evt.Domain, evt.EntityID, evt.Path, evt.Op, evt.Value)
	}
	evt.ID = strings.TrimSpace(partial.ID)
	if evt.ID == "" {
		evt.ID = fmt.Sprintf("sve_%s_%d_%s", evt.TurnID, evt.CreatedAt, uuid.NewString()[:8])
	}
	return evt
}

// Normalize coerces a raw, possibly invalid payload into an Event. It
// accepts an Event value or a decoded JSON object; anything else returns
// ErrNotObject.
func Normalize(raw any) (Event, error) {
	switch v := raw.(type) {
	case Event:
		return New(v), nil
	case *Event:
		if v == nil {
			return Event{}, ErrNotObject
		}
		return New(*v), nil
	case map[string]any:
		return New(eventFromObject(v)), nil
	default:
		return Event{}, ErrNotObject
	}
}

func eventFromObject(obj map[string]any) Event {
	partial := Event{
		ID:             jsonval.Text(obj["event_id"]),
		TurnID:         jsonval.Text(obj["turn_id"]),
		Source:         jsonval.Text(obj["source"]),
		Domain:         jsonval.Text(obj["domain"]),
		EntityID:       jsonval.Text(obj["entity_id"]),
		Path:           jsonval.Text(obj["path"]),
		Op:             Op(jsonval.Text(obj["op"])),
		Value:          jsonval.V(obj["value"]),
		IdempotencyKey: jsonval.Text(obj["idempotency_key"]),
	}
	if raw, ok := obj["expected_version"]; ok && raw != nil {
		if num, numOK := jsonval.Number(raw); numOK {
			expected := clampVersion(num)
			partial.ExpectedVersion = &expected
		}
	}
	if num, ok := jsonval.Number(obj["created_at"]); ok {
		partial.CreatedAt = clampVersion(num)
	}
	return partial
}

// Issue describes one validation failure.
type Issue struct {
	Field  string
	Reason string
}

// Result is the outcome of validating an event.
type Result struct {
	Issues []Issue
}

// Valid reports whether validation found no issues.
func (r Result) Valid() bool {
	return len(r.Issues) == 0
}

// Validate checks an event against the schema: required non-empty strings,
// a closed operation set, and a non-negative created-at. It reports issues
// as data and never panics.
func Validate(evt Event) Result {
	var issues []Issue
	required := []struct {
		field string
		value string
	}{
		{"event_id", evt.ID},
		{"turn_id", evt.TurnID},
		{"source", evt.Source},
		{"domain", evt.Domain},
		{"entity_id", evt.EntityID},
		{"path", evt.Path},
		{"idempotency_key", evt.IdempotencyKey},
	}
	for _, req := range required {
		if strings.TrimSpace(req.value) == "" {
			issues = append(issues, Issue{Field: req.field, Reason: "required"})
		}
	}
	if !evt.Op.IsValid() {
		issues = append(issues, Issue{Field: "op", Reason: "unknown operation"})
	}
	if evt.CreatedAt < 0 {
		issues = append(issues, Issue{Field: "created_at", Reason: "must be non-negative"})
	}
	if evt.ExpectedVersion != nil && *evt.ExpectedVersion < 0 {
		issues = append(issues, Issue{Field: "expected_version", Reason: "must be non-negative"})
	}
	return Result{Issues: issues}
}
