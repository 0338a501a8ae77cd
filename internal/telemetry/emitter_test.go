package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/tavernforge/statevar/internal/storage"
	"github.com/tavernforge/statevar/internal/writer"
)

type fakeStore struct {
	events []storage.TelemetryEvent
}

func (f *fakeStore) AppendTelemetryEvent(_ context.Context, evt storage.TelemetryEvent) error {
	f.events = append(f.events, evt)
	return nil
}

func TestEmitFillsTimestamp(t *testing.T) {
	store := &fakeStore{}
	emitter := NewEmitter(store)
	emitter.clock = func() time.Time { return time.UnixMilli(1700000000000) }

	if err := emitter.Emit(context.Background(), storage.TelemetryEvent{
		EventName: "statevar.test",
		Severity:  string(SeverityInfo),
	}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if len(store.events) != 1 {
		t.Fatalf("events = %d, want 1", len(store.events))
	}
	if got := store.events[0].Timestamp.UnixMilli(); got != 1700000000000 {
		t.Errorf("Timestamp = %d, want clock value", got)
	}
}

func TestEmitNilEmitterIsNoop(t *testing.T) {
	var emitter *Emitter
	if err := emitter.Emit(context.Background(), storage.TelemetryEvent{EventName: "x"}); err != nil {
		t.Fatalf("Emit on nil emitter: %v", err)
	}
}

func TestEmitBatchConsumedSeverity(t *testing.T) {
	store := &fakeStore{}
	emitter := NewEmitter(store)

	if err := emitter.EmitBatchConsumed(context.Background(), "svb_t1_1", writer.Metrics{
		AcceptedCount: 3,
	}); err != nil {
		t.Fatalf("EmitBatchConsumed: %v", err)
	}
	if err := emitter.EmitBatchConsumed(context.Background(), "svb_t1_2", writer.Metrics{
		AcceptedCount: 1,
		SkippedCount:  2,
	}); err != nil {
		t.Fatalf("EmitBatchConsumed: %v", err)
	}

	if store.events[0].Severity != string(SeverityInfo) {
		t.Errorf("clean batch severity = %q, want INFO", store.events[0].Severity)
	}
	if store.events[1].Severity != string(SeverityWarn) {
		t.Errorf("skipping batch severity = %q, want WARN", store.events[1].Severity)
	}
	if store.events[1].Attributes["skipped_count"] != "2" {
		t.Errorf("skipped_count = %q, want 2", store.events[1].Attributes["skipped_count"])
	}
}

func TestEmitGateVerdictSeverity(t *testing.T) {
	store := &fakeStore{}
	emitter := NewEmitter(store)

	for _, verdict := range []string{"pass", "warn", "fail"} {
		if err := emitter.EmitGateVerdict(context.Background(), verdict, []string{"changedCells>=1"}); err != nil {
			t.Fatalf("EmitGateVerdict(%s): %v", verdict, err)
		}
	}

	want := []string{string(SeverityInfo), string(SeverityWarn), string(SeverityError)}
	for i, severity := range want {
		if store.events[i].Severity != severity {
			t.Errorf("verdict %d severity = %q, want %q", i, store.events[i].Severity, severity)
		}
	}
}
