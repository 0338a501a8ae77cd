package replay

import (
	"context"

	"github.com/tavernforge/statevar/internal/event"
	"github.com/tavernforge/statevar/internal/sheet"
	"github.com/tavernforge/statevar/internal/writer"
)

// Replay re-consumes journalled events through a fresh writer in shadow
// mode and folds the resulting commands onto the starting snapshot. The
// fresh writer state means the journal's own idempotency keys deduplicate
// exactly as they did on the live path.
func Replay(ctx context.Context, events []event.Event, start sheet.Snapshot) (sheet.Snapshot, writer.Result, error) {
	w := writer.New()
	res, err := w.Consume(ctx, event.Batch{Events: events}, writer.Options{
		Snapshot: start,
		Mode:     writer.ModeShadow,
	})
	if err != nil {
		return nil, res, err
	}
	return res.Snapshot, res, nil
}

// Report is the full output of one replay verification run.
type Report struct {
	Diff        Result       `json:"diff"`
	Gate        GateResult   `json:"gate"`
	InvalidRows []InvalidRow `json:"invalid_rows,omitempty"`
	Replayed    int          `json:"replayed_events"`
	Skipped     int          `json:"skipped_events"`
}

// Verify replays event-log rows from the start snapshot and grades the
// rebuilt pilot sheets against the baseline. A nil start replays from
// empty state; journals holding relative operations (numeric adds,
// index-addressed deletes) need the pre-journal snapshot so those
// operations resolve against the rows they originally saw.
func Verify(ctx context.Context, logRows []sheet.Row, start, baseline sheet.Snapshot, th Thresholds) (Report, error) {
	events, invalid := ParseEventLogRows(logRows)

	rebuilt, res, err := Replay(ctx, events, start.Clone())
	if err != nil {
		return Report{}, err
	}

	report := Report{
		InvalidRows: invalid,
		Replayed:    len(res.Accepted),
		Skipped:     len(res.Skipped),
	}
	report.Diff = Diff(baseline, rebuilt)
	report.Gate = Gate(report.Diff, len(invalid), th)
	return report, nil
}
