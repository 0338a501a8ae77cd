package writer

import (
	"fmt"
	"time"

	"github.com/tavernforge/statevar/internal/event"
	"github.com/tavernforge/statevar/internal/sheet"
)

// auditCommands journals accepted events: one row per event in the event
// log sheet and one queued entry per event in the apply log. The journal is
// written in both shadow and apply mode so replay always has a complete
// record.
func (w *Writer) auditCommands(accepted []event.Event, mode Mode, now time.Time) []Command {
	if len(accepted) == 0 {
		return nil
	}

	eventRows := make([]sheet.Row, 0, len(accepted))
	applyRows := make([]sheet.Row, 0, len(accepted))
	appliedAt := now.UnixMilli()

	for i, evt := range accepted {
		var expected any
		if evt.ExpectedVersion != nil {
			expected = float64(*evt.ExpectedVersion)
		}
		eventRows = append(eventRows, sheet.Row{
			"event_id":         evt.ID,
			"turn_id":          evt.TurnID,
			"source":           evt.Source,
			"domain":           evt.Domain,
			"entity_id":        evt.EntityID,
			"path":             evt.Path,
			"op":               string(evt.Op),
			"idempotency_key":  evt.IdempotencyKey,
			"created_at":       float64(evt.CreatedAt),
			"expected_version": expected,
			"payload":          evt.Value.Stable(),
		})
		applyRows = append(applyRows, sheet.Row{
			"apply_id":        fmt.Sprintf("%s:%s:%d", evt.ID, mode, i),
			"event_id":        evt.ID,
			"result":          "queued",
			"conflict_reason": "",
			"retry_count":     float64(0),
			"latency_ms":      float64(0),
			"applied_at":      float64(appliedAt),
		})
	}

	return []Command{
		upsertCommand(sheet.SysStateVarEventLog, "event_id", "", eventRows...),
		upsertCommand(sheet.SysStateVarApplyLog, "apply_id", "", applyRows...),
	}
}
