package replay

import (
	"context"
	"testing"

	"github.com/tavernforge/statevar/internal/event"
	"github.com/tavernforge/statevar/internal/jsonval"
	"github.com/tavernforge/statevar/internal/sheet"
	"github.com/tavernforge/statevar/internal/writer"
)

func turnEvents(t *testing.T) []event.Event {
	t.Helper()
	batch := event.NewBatch([]event.Event{
		{Domain: "global_state", EntityID: "GLOBAL", Path: "gameState.当前场景", Op: event.OpSet, Value: jsonval.V("酒馆"), CreatedAt: 1000},
		{Domain: "inventory", EntityID: "INVENTORY", Path: "背包", Op: event.OpPush, Value: jsonval.V(map[string]any{
			"物品ID": "itm-1", "物品名称": "铁剑", "数量": float64(1), "品质": "rare",
		}), CreatedAt: 2000},
		{Domain: "character_resources", EntityID: "PLAYER", Path: "角色.生命值", Op: event.OpSet, Value: jsonval.V(float64(12)), CreatedAt: 3000},
		{Domain: "inventory", EntityID: "INVENTORY", Path: "背包", Op: event.OpAdd, Value: jsonval.V(map[string]any{
			"物品ID": "itm-1", "delta": float64(2),
		}), CreatedAt: 4000},
	}, event.BatchMeta{TurnID: "t1", Source: "runtime", CreatedAt: 5000})
	return batch.Events
}

func TestEventLogRoundTrip(t *testing.T) {
	events := turnEvents(t)
	rows := EventLogRows(events)

	parsed, invalid := ParseEventLogRows(rows)
	if len(invalid) != 0 {
		t.Fatalf("invalid rows = %+v", invalid)
	}
	if len(parsed) != len(events) {
		t.Fatalf("parsed = %d, want %d", len(parsed), len(events))
	}
	for i, evt := range parsed {
		if evt.ID != events[i].ID {
			t.Errorf("event %d id = %q, want %q", i, evt.ID, events[i].ID)
		}
		if evt.IdempotencyKey != events[i].IdempotencyKey {
			t.Errorf("event %d key = %q, want %q", i, evt.IdempotencyKey, events[i].IdempotencyKey)
		}
		if !jsonval.Equal(evt.Value.Raw(), events[i].Value.Raw()) {
			t.Errorf("event %d payload = %v, want %v", i, evt.Value.Raw(), events[i].Value.Raw())
		}
	}
}

func TestParseEventLogRowsRejectsBadRows(t *testing.T) {
	rows := []sheet.Row{
		{"event_id": "e1", "turn_id": "t1", "source": "runtime", "domain": "inventory",
			"entity_id": "INVENTORY", "path": "背包", "op": "push",
			"idempotency_key": "k1", "created_at": float64(1), "payload": `{"物品ID":"itm-1"}`},
		{"event_id": "", "turn_id": "t1"},
		{"event_id": "e2", "turn_id": "t1", "source": "runtime", "domain": "inventory",
			"entity_id": "INVENTORY", "path": "背包", "op": "push",
			"idempotency_key": "k2", "created_at": "soon"},
		{"event_id": "e3", "turn_id": "t1", "source": "runtime", "domain": "inventory",
			"entity_id": "INVENTORY", "path": "背包", "op": "push",
			"idempotency_key": "k3", "created_at": float64(3), "payload": float64(7)},
	}

	events, invalid := ParseEventLogRows(rows)
	if len(events) != 1 || events[0].ID != "e1" {
		t.Fatalf("events = %+v, want only e1", events)
	}
	if len(invalid) != 3 {
		t.Fatalf("invalid = %d, want 3", len(invalid))
	}
	wantReasons := []string{ReasonMissingRequired, ReasonInvalidCreated, ReasonInvalidPayload}
	for i, inv := range invalid {
		if !containsReason(inv.Reasons, wantReasons[i]) {
			t.Errorf("invalid[%d] reasons = %v, want %s", i, inv.Reasons, wantReasons[i])
		}
	}
}

func TestParseEventLogRowsSortsByCreation(t *testing.T) {
	rows := EventLogRows([]event.Event{
		event.New(event.Event{ID: "b", TurnID: "t1", Domain: "character_resources", EntityID: "PLAYER", Path: "角色.x", Op: event.OpSet, CreatedAt: 200}),
		event.New(event.Event{ID: "a", TurnID: "t1", Domain: "character_resources", EntityID: "PLAYER", Path: "角色.y", Op: event.OpSet, CreatedAt: 100}),
		event.New(event.Event{ID: "c", TurnID: "t1", Domain: "character_resources", EntityID: "PLAYER", Path: "角色.z", Op: event.OpSet, CreatedAt: 100}),
	})

	events, _ := ParseEventLogRows(rows)
	var order []string
	for _, evt := range events {
		order = append(order, evt.ID)
	}
	want := []string{"a", "c", "b"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

// Replaying a turn's journal from empty state must rebuild exactly the
// snapshot the live writer produced.
func TestReplayEquivalence(t *testing.T) {
	ctx := context.Background()
	events := turnEvents(t)

	live := writer.New()
	liveRes, err := live.Consume(ctx, event.Batch{Events: events}, writer.Options{})
	if err != nil {
		t.Fatalf("live consume: %v", err)
	}
	if len(liveRes.Accepted) != len(events) {
		t.Fatalf("live accepted = %d, want %d (skipped %+v)", len(liveRes.Accepted), len(events), liveRes.Skipped)
	}

	logRows := EventLogRows(liveRes.Accepted)
	report, err := Verify(ctx, logRows, nil, liveRes.Snapshot, DefaultThresholds())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if report.Gate.Verdict != VerdictPass {
		t.Fatalf("verdict = %s, reasons = %v, diff = %+v", report.Gate.Verdict, report.Gate.Reasons, report.Diff)
	}
	if !report.Diff.Matched {
		t.Fatalf("diff not matched: %+v", report.Diff)
	}
	if report.Replayed != len(events) {
		t.Errorf("Replayed = %d, want %d", report.Replayed, len(events))
	}
}

func TestVerifyFlagsDivergentBaseline(t *testing.T) {
	ctx := context.Background()
	events := turnEvents(t)

	live := writer.New()
	liveRes, err := live.Consume(ctx, event.Batch{Events: events}, writer.Options{})
	if err != nil {
		t.Fatalf("live consume: %v", err)
	}

	baseline := liveRes.Snapshot.Clone()
	tbl := baseline.Table(sheet.ItemInventory)
	tbl.Rows[0]["数量"] = float64(99)
	baseline[sheet.ItemInventory] = tbl

	report, err := Verify(ctx, EventLogRows(liveRes.Accepted), nil, baseline, DefaultThresholds())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Gate.Verdict == VerdictPass {
		t.Fatalf("verdict = pass for tampered baseline, diff = %+v", report.Diff)
	}
	if report.Diff.Totals.ChangedCells != 1 {
		t.Errorf("ChangedCells = %d, want 1", report.Diff.Totals.ChangedCells)
	}
}

// A journal recorded mid-session only makes sense against the snapshot it
// started from. Relative ops (quantity deltas) must fold onto that start
// state, not onto an empty one.
func TestVerifyReplaysFromStartSnapshot(t *testing.T) {
	ctx := context.Background()

	start := sheet.Snapshot{
		sheet.ItemInventory: inventoryTable(
			sheet.Row{"物品ID": "itm-1", "物品名称": "铁剑", "数量": float64(5), "品质": "稀有", "稀有度": "稀有"},
		),
	}

	events := event.NewBatch([]event.Event{
		{Domain: "inventory", EntityID: "INVENTORY", Path: "背包", Op: event.OpAdd, Value: jsonval.V(map[string]any{
			"物品ID": "itm-1", "delta": float64(3),
		}), CreatedAt: 1000},
	}, event.BatchMeta{TurnID: "t2", Source: "runtime", CreatedAt: 2000}).Events

	live := writer.New()
	liveRes, err := live.Consume(ctx, event.Batch{Events: events}, writer.Options{Snapshot: start})
	if err != nil {
		t.Fatalf("live consume: %v", err)
	}
	if len(liveRes.Accepted) != 1 {
		t.Fatalf("live accepted = %d, want 1 (skipped %+v)", len(liveRes.Accepted), liveRes.Skipped)
	}

	report, err := Verify(ctx, EventLogRows(liveRes.Accepted), start, liveRes.Snapshot, DefaultThresholds())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Gate.Verdict != VerdictPass {
		t.Fatalf("verdict = %s, reasons = %v, diff = %+v", report.Gate.Verdict, report.Gate.Reasons, report.Diff)
	}

	// From empty state the delta lands on 3, not 8, so the diff must flag it.
	report, err = Verify(ctx, EventLogRows(liveRes.Accepted), nil, liveRes.Snapshot, DefaultThresholds())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Gate.Verdict == VerdictPass {
		t.Fatalf("verdict = pass without start snapshot, diff = %+v", report.Diff)
	}
}
