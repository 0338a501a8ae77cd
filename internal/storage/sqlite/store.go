// Package sqlite provides the SQLite-backed event journal and telemetry
// store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/tavernforge/statevar/internal/platform/errors"
	"github.com/tavernforge/statevar/internal/storage"
)

// Store persists the event journal and telemetry in SQLite.
type Store struct {
	sqlDB *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS state_var_events (
	event_id TEXT PRIMARY KEY,
	turn_id TEXT NOT NULL,
	source TEXT NOT NULL,
	domain TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	path TEXT NOT NULL,
	op TEXT NOT NULL,
	idempotency_key TEXT NOT NULL,
	expected_version INTEGER,
	payload TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_state_var_events_order
	ON state_var_events(created_at, event_id);
CREATE INDEX IF NOT EXISTS idx_state_var_events_idem
	ON state_var_events(idempotency_key);
CREATE TABLE IF NOT EXISTS telemetry_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	event_name TEXT NOT NULL,
	severity TEXT NOT NULL,
	attributes_json TEXT
);
`

// Open opens a SQLite store at the provided path and bootstraps the
// schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, apperrors.New(apperrors.CodeStoragePathRequired, "storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AppendEvents journals records in one transaction. Already journalled
// event ids are skipped so append is safe to retry.
func (s *Store) AppendEvents(ctx context.Context, records []storage.EventLogRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO state_var_events (
			event_id, turn_id, source, domain, entity_id, path, op,
			idempotency_key, expected_version, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		if strings.TrimSpace(record.EventID) == "" {
			return fmt.Errorf("event id is required")
		}
		var expected sql.NullInt64
		if record.ExpectedVersion != nil {
			expected = sql.NullInt64{Int64: *record.ExpectedVersion, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			record.EventID, record.TurnID, record.Source, record.Domain,
			record.EntityID, record.Path, record.Op, record.IdempotencyKey,
			expected, record.Payload, record.CreatedAt,
		); err != nil {
			return fmt.Errorf("append event %s: %w", record.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// ListEvents returns the full journal in replay order.
func (s *Store) ListEvents(ctx context.Context) ([]storage.EventLogRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT event_id, turn_id, source, domain, entity_id, path, op,
			idempotency_key, expected_version, payload, created_at
		FROM state_var_events
		ORDER BY created_at, event_id`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var records []storage.EventLogRecord
	for rows.Next() {
		var record storage.EventLogRecord
		var expected sql.NullInt64
		if err := rows.Scan(
			&record.EventID, &record.TurnID, &record.Source, &record.Domain,
			&record.EntityID, &record.Path, &record.Op, &record.IdempotencyKey,
			&expected, &record.Payload, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if expected.Valid {
			value := expected.Int64
			record.ExpectedVersion = &value
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// GetEvent returns a single journalled record by event id.
func (s *Store) GetEvent(ctx context.Context, eventID string) (storage.EventLogRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.EventLogRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.EventLogRecord{}, fmt.Errorf("storage is not configured")
	}

	var record storage.EventLogRecord
	var expected sql.NullInt64
	err := s.sqlDB.QueryRowContext(ctx, `
		SELECT event_id, turn_id, source, domain, entity_id, path, op,
			idempotency_key, expected_version, payload, created_at
		FROM state_var_events WHERE event_id = ?`, eventID).Scan(
		&record.EventID, &record.TurnID, &record.Source, &record.Domain,
		&record.EntityID, &record.Path, &record.Op, &record.IdempotencyKey,
		&expected, &record.Payload, &record.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return storage.EventLogRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.EventLogRecord{}, fmt.Errorf("get event: %w", err)
	}
	if expected.Valid {
		value := expected.Int64
		record.ExpectedVersion = &value
	}
	return record, nil
}

// AppendTelemetryEvent records one operational telemetry event.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(evt.EventName) == "" {
		return fmt.Errorf("event name is required")
	}
	if strings.TrimSpace(evt.Severity) == "" {
		return fmt.Errorf("severity is required")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	var attributes any
	if len(evt.Attributes) > 0 {
		payload, err := json.Marshal(evt.Attributes)
		if err != nil {
			return fmt.Errorf("marshal telemetry attributes: %w", err)
		}
		attributes = string(payload)
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO telemetry_events (timestamp, event_name, severity, attributes_json)
		VALUES (?, ?, ?, ?)`,
		evt.Timestamp.UTC().UnixMilli(), evt.EventName, evt.Severity, attributes,
	); err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}
