// Package storage defines the persistence interfaces for the event journal
// and operational telemetry. Implementations live in subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tavernforge/statevar/internal/event"
	"github.com/tavernforge/statevar/internal/sheet"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// EventLogRecord is one journalled event in storage form. The payload is a
// canonical JSON string so journalled values round-trip byte-identically.
type EventLogRecord struct {
	EventID         string
	TurnID          string
	Source          string
	Domain          string
	EntityID        string
	Path            string
	Op              string
	IdempotencyKey  string
	ExpectedVersion *int64
	Payload         string
	CreatedAt       int64
}

// RecordFromEvent converts a domain event into its storage form.
func RecordFromEvent(evt event.Event) EventLogRecord {
	return EventLogRecord{
		EventID:         evt.ID,
		TurnID:          evt.TurnID,
		Source:          evt.Source,
		Domain:          evt.Domain,
		EntityID:        evt.EntityID,
		Path:            evt.Path,
		Op:              string(evt.Op),
		IdempotencyKey:  evt.IdempotencyKey,
		ExpectedVersion: evt.ExpectedVersion,
		Payload:         evt.Value.Stable(),
		CreatedAt:       evt.CreatedAt,
	}
}

// Row projects the record into the event-log sheet shape consumed by
// replay.
func (r EventLogRecord) Row() sheet.Row {
	var expected any
	if r.ExpectedVersion != nil {
		expected = float64(*r.ExpectedVersion)
	}
	return sheet.Row{
		"event_id":         r.EventID,
		"turn_id":          r.TurnID,
		"source":           r.Source,
		"domain":           r.Domain,
		"entity_id":        r.EntityID,
		"path":             r.Path,
		"op":               r.Op,
		"idempotency_key":  r.IdempotencyKey,
		"created_at":       float64(r.CreatedAt),
		"expected_version": expected,
		"payload":          r.Payload,
	}
}

// Rows projects a record list into event-log sheet rows.
func Rows(records []EventLogRecord) []sheet.Row {
	rows := make([]sheet.Row, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.Row())
	}
	return rows
}

// EventLogStore persists the append-only event journal.
type EventLogStore interface {
	// AppendEvents journals records. Re-appending an already journalled
	// event id is a no-op.
	AppendEvents(ctx context.Context, records []EventLogRecord) error
	// ListEvents returns all journalled records ordered by creation time,
	// then event id.
	ListEvents(ctx context.Context) ([]EventLogRecord, error)
	Close() error
}

// TelemetryEvent is one operational telemetry record.
type TelemetryEvent struct {
	Timestamp  time.Time
	EventName  string
	Severity   string
	Attributes map[string]string
}

// TelemetryStore records operational telemetry events.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, evt TelemetryEvent) error
}
