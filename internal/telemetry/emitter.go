// Package telemetry records operational events about the write and replay
// pipelines.
package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/tavernforge/statevar/internal/storage"
	"github.com/tavernforge/statevar/internal/writer"
)

// Severity describes the telemetry severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Emitter records operational telemetry events.
type Emitter struct {
	store storage.TelemetryStore
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records a telemetry event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, evt storage.TelemetryEvent) error {
	if e == nil || e.store == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		if e.clock == nil {
			evt.Timestamp = time.Now().UTC()
		} else {
			evt.Timestamp = e.clock().UTC()
		}
	}
	return e.store.AppendTelemetryEvent(ctx, evt)
}

// EmitBatchConsumed records the outcome of one writer batch.
func (e *Emitter) EmitBatchConsumed(ctx context.Context, batchID string, metrics writer.Metrics) error {
	severity := SeverityInfo
	if metrics.SkippedCount > 0 {
		severity = SeverityWarn
	}
	return e.Emit(ctx, storage.TelemetryEvent{
		EventName: "statevar.batch.consumed",
		Severity:  string(severity),
		Attributes: map[string]string{
			"batch_id":       batchID,
			"accepted_count": strconv.Itoa(metrics.AcceptedCount),
			"skipped_count":  strconv.Itoa(metrics.SkippedCount),
			"command_count":  strconv.Itoa(metrics.CommandCount),
		},
	})
}

// EmitGateVerdict records a replay gate decision.
func (e *Emitter) EmitGateVerdict(ctx context.Context, verdict string, reasons []string) error {
	severity := SeverityInfo
	switch verdict {
	case "warn":
		severity = SeverityWarn
	case "fail":
		severity = SeverityError
	}
	attributes := map[string]string{
		"verdict":      verdict,
		"reason_count": strconv.Itoa(len(reasons)),
	}
	if len(reasons) > 0 {
		attributes["first_reason"] = reasons[0]
	}
	return e.Emit(ctx, storage.TelemetryEvent{
		EventName:  "statevar.replay.verdict",
		Severity:   string(severity),
		Attributes: attributes,
	})
}
