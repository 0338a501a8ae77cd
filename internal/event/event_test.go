package event

import (
	"strings"
	"testing"

	"github.com/tavernforge/statevar/internal/jsonval"
	apperrors "github.com/tavernforge/statevar/internal/platform/errors"
)

func TestNewFillsFallbacks(t *testing.T) {
	evt := New(Event{})

	if evt.TurnID != "turn-unknown" {
		t.Errorf("TurnID = %q, want turn-unknown", evt.TurnID)
	}
	if evt.Source != "runtime" {
		t.Errorf("Source = %q, want runtime", evt.Source)
	}
	if evt.Domain != "unknown" {
		t.Errorf("Domain = %q, want unknown", evt.Domain)
	}
	if evt.EntityID != "entity" {
		t.Errorf("EntityID = %q, want entity", evt.EntityID)
	}
	if evt.Path != "path" {
		t.Errorf("Path = %q, want path", evt.Path)
	}
	if evt.Op != OpUpsert {
		t.Errorf("Op = %q, want upsert", evt.Op)
	}
	if evt.ID == "" {
		t.Error("expected a generated event id")
	}
	if evt.IdempotencyKey == "" {
		t.Error("expected a derived idempotency key")
	}
	if evt.CreatedAt <= 0 {
		t.Errorf("CreatedAt = %d, want positive", evt.CreatedAt)
	}
}

func TestIdempotencyKeyIgnoresFieldOrder(t *testing.T) {
	a := BuildIdempotencyKey("t1", "runtime", "inventory", "INVENTORY", "背包", OpUpsert,
		jsonval.V(map[string]any{"物品名称": "铁剑", "数量": float64(2)}))
	b := BuildIdempotencyKey("t1", "runtime", "inventory", "INVENTORY", "背包", OpUpsert,
		jsonval.V(map[string]any{"数量": float64(2), "物品名称": "铁剑"}))

	if a != b {
		t.Errorf("keys differ for same semantic value: %q vs %q", a, b)
	}
}

func TestIdempotencyKeyChangesWithValue(t *testing.T) {
	a := BuildIdempotencyKey("t1", "runtime", "global_state", "GLOBAL", "gameState.当前场景", OpSet, jsonval.V("酒馆"))
	b := BuildIdempotencyKey("t1", "runtime", "global_state", "GLOBAL", "gameState.当前场景", OpSet, jsonval.V("森林"))

	if a == b {
		t.Error("keys should differ for different values")
	}
}

func TestNewPreservesExplicitIdentity(t *testing.T) {
	evt := New(Event{
		ID:             "evt-1",
		TurnID:         "t7",
		IdempotencyKey: "custom-key",
		CreatedAt:      42,
	})

	if evt.ID != "evt-1" {
		t.Errorf("ID = %q, want evt-1", evt.ID)
	}
	if evt.IdempotencyKey != "custom-key" {
		t.Errorf("IdempotencyKey = %q, want custom-key", evt.IdempotencyKey)
	}
	if evt.CreatedAt != 42 {
		t.Errorf("CreatedAt = %d, want 42", evt.CreatedAt)
	}
}

func TestNewClampsExpectedVersion(t *testing.T) {
	negative := int64(-3)
	evt := New(Event{ExpectedVersion: &negative})

	if evt.ExpectedVersion == nil || *evt.ExpectedVersion != 0 {
		t.Errorf("ExpectedVersion = %v, want 0", evt.ExpectedVersion)
	}
}

func TestNormalizeObject(t *testing.T) {
	evt, err := Normalize(map[string]any{
		"turn_id":          "t3",
		"domain":           "character_resources",
		"entity_id":        "PLAYER",
		"path":             "角色.生命值",
		"op":               "add",
		"value":            float64(-5),
		"expected_version": float64(2),
		"created_at":       float64(1700000000000),
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if evt.Op != OpAdd {
		t.Errorf("Op = %q, want add", evt.Op)
	}
	if evt.ExpectedVersion == nil || *evt.ExpectedVersion != 2 {
		t.Errorf("ExpectedVersion = %v, want 2", evt.ExpectedVersion)
	}
	if evt.CreatedAt != 1700000000000 {
		t.Errorf("CreatedAt = %d, want 1700000000000", evt.CreatedAt)
	}
	if num, ok := evt.Value.Number(); !ok || num != -5 {
		t.Errorf("Value = %v, want -5", evt.Value.Raw())
	}
}

func TestNormalizeRejectsNonObject(t *testing.T) {
	for _, raw := range []any{nil, "not an event", float64(7), []any{"x"}} {
		if _, err := Normalize(raw); !apperrors.IsCode(err, apperrors.CodeEventNotObject) {
			t.Errorf("Normalize(%v) error = %v, want event-not-object code", raw, err)
		}
	}
}

func TestValidateReportsMissingFields(t *testing.T) {
	res := Validate(Event{Op: "explode"})

	if res.Valid() {
		t.Fatal("expected validation issues")
	}
	fields := make(map[string]bool)
	for _, issue := range res.Issues {
		fields[issue.Field] = true
	}
	for _, want := range []string{"event_id", "turn_id", "idempotency_key", "op"} {
		if !fields[want] {
			t.Errorf("missing issue for %s; got %v", want, res.Issues)
		}
	}
}

func TestValidateAcceptsCompleteEvent(t *testing.T) {
	evt := New(Event{
		TurnID:   "t1",
		Domain:   "global_state",
		EntityID: "GLOBAL",
		Path:     "gameState.当前场景",
		Op:       OpSet,
		Value:    jsonval.V("酒馆"),
	})

	if res := Validate(evt); !res.Valid() {
		t.Errorf("unexpected issues: %v", res.Issues)
	}
}

func TestSignatureUsesSeparator(t *testing.T) {
	sig := Signature("t1", "runtime", "unknown", "entity", "path", OpSet, jsonval.V(nil))
	if !strings.Contains(sig, "::") {
		t.Errorf("signature %q missing separator", sig)
	}
	if !strings.HasSuffix(sig, "null") {
		t.Errorf("signature %q should end with stable null value", sig)
	}
}
