package replay

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/tavernforge/statevar/internal/event"
	"github.com/tavernforge/statevar/internal/jsonval"
	"github.com/tavernforge/statevar/internal/sheet"
)

// EventLogRows projects events into the event-log sheet shape. Payloads are
// stored as canonical JSON strings; a missing expected version is stored as
// an explicit nil cell.
func EventLogRows(events []event.Event) []sheet.Row {
	rows := make([]sheet.Row, 0, len(events))
	for _, evt := range events {
		var expected any
		if evt.ExpectedVersion != nil {
			expected = float64(*evt.ExpectedVersion)
		}
		rows = append(rows, sheet.Row{
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
	}
	return rows
}

// InvalidRow pairs an unparseable event-log row with its rejection
// reasons.
type InvalidRow struct {
	Row     sheet.Row `json:"row"`
	Reasons []string  `json:"reasons"`
}

// Rejection reasons for event-log rows.
const (
	ReasonMissingRequired = "missing_required"
	ReasonInvalidCreated  = "invalid_created_at"
	ReasonInvalidPayload  = "invalid_event_payload"
)

var requiredLogFields = []string{
	"event_id", "turn_id", "source", "domain", "entity_id", "path", "op", "idempotency_key",
}

// ParseEventLogRows rebuilds events from event-log rows. Rows that cannot
// be trusted are reported, not dropped silently, and never abort the
// parse. Parsed events come back sorted by creation time, then event id,
// so replay order is deterministic.
func ParseEventLogRows(rows []sheet.Row) ([]event.Event, []InvalidRow) {
	var events []event.Event
	var invalid []InvalidRow

	for _, row := range rows {
		var reasons []string

		fields := make(map[string]string, len(requiredLogFields))
		for _, name := range requiredLogFields {
			text, _ := row[name].(string)
			text = strings.TrimSpace(text)
			if text == "" {
				reasons = append(reasons, ReasonMissingRequired)
				break
			}
			fields[name] = text
		}

		createdAt, createdOK := jsonval.Number(row["created_at"])
		if !createdOK || math.IsNaN(createdAt) || math.IsInf(createdAt, 0) || createdAt < 0 {
			reasons = append(reasons, ReasonInvalidCreated)
		}

		value, payloadReason := parsePayload(row["payload"])
		if payloadReason != "" {
			reasons = append(reasons, payloadReason)
		}

		if len(reasons) > 0 {
			invalid = append(invalid, InvalidRow{Row: row, Reasons: reasons})
			continue
		}

		evt := event.Event{
			ID:             fields["event_id"],
			TurnID:         fields["turn_id"],
			Source:         fields["source"],
			Domain:         fields["domain"],
			EntityID:       fields["entity_id"],
			Path:           fields["path"],
			Op:             event.Op(fields["op"]),
			IdempotencyKey: fields["idempotency_key"],
			CreatedAt:      int64(createdAt),
			Value:          value,
		}
		if num, ok := jsonval.Number(row["expected_version"]); ok {
			expected := int64(num)
			if expected < 0 {
				expected = 0
			}
			evt.ExpectedVersion = &expected
		}
		events = append(events, evt)
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt < events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})
	return events, invalid
}

// parsePayload decodes a journalled payload. String payloads are JSON;
// a string that fails to decode is kept as-is, which covers journals that
// predate canonical encoding. Nil means no payload. Anything else is
// malformed.
func parsePayload(raw any) (jsonval.Value, string) {
	switch v := raw.(type) {
	case nil:
		return jsonval.V(nil), ""
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return jsonval.V(v), ""
		}
		return jsonval.V(decoded), ""
	default:
		return jsonval.V(nil), ReasonInvalidPayload
	}
}
