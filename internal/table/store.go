// Package table implements the in-memory versioned table store. Every
// mutation is guarded by optimistic version checks and row and cell locks;
// rejected mutations are reported as conflicts, never silently dropped.
package table

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tavernforge/statevar/internal/jsonval"
	apperrors "github.com/tavernforge/statevar/internal/platform/errors"
	"github.com/tavernforge/statevar/internal/sheet"
)

// Store holds sheet data with per-sheet and per-row versions. All methods
// are safe for concurrent use.
type Store struct {
	mu sync.Mutex

	tables map[sheet.ID]*tableState

	sheetVersions map[sheet.ID]int64
	rowVersions   map[string]int64

	// seed versions carry state for sheets and rows that are known to the
	// runtime but not materialised in this store. Live versions shadow them.
	seedSheetVersions map[sheet.ID]int64
	seedRowVersions   map[string]int64

	rowLocks  map[string]string
	cellLocks map[string]map[string]string

	conflicts ConflictStats
}

type tableState struct {
	keyField string
	rows     []sheet.Row
	index    map[string]int
}

// Meta is the portable concurrency state of a store: versions, locks, and
// conflict counters. It survives snapshot round trips so a rebuilt store
// keeps enforcing the same expectations.
type Meta struct {
	SheetVersions map[sheet.ID]int64 `json:"sheet_versions"`
	RowVersions   map[string]int64   `json:"row_versions"`
	RowLocks      map[string]string  `json:"row_locks"`
	CellLocks     map[string]string  `json:"cell_locks"`
	Conflicts     ConflictStats      `json:"conflicts"`
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tables:            make(map[sheet.ID]*tableState),
		sheetVersions:     make(map[sheet.ID]int64),
		rowVersions:       make(map[string]int64),
		seedSheetVersions: make(map[sheet.ID]int64),
		seedRowVersions:   make(map[string]int64),
		rowLocks:          make(map[string]string),
		cellLocks:         make(map[string]map[string]string),
	}
}

// FromSnapshot builds a store preloaded with the given tables. Rows
// without a usable key value get a positional synthetic id, and rows
// whose key duplicates an earlier row merge into it; no data is dropped.
// Versions start at zero; use WithMeta to restore concurrency state.
func FromSnapshot(snap sheet.Snapshot) *Store {
	s := New()
	for id, tbl := range snap {
		state := &tableState{
			keyField: tbl.KeyField,
			index:    make(map[string]int),
		}
		if state.keyField == "" {
			state.keyField = sheet.KeyField(id)
		}
		for i, row := range tbl.Rows {
			rowID, ok := row.KeyValue(state.keyField)
			if !ok {
				rowID = fmt.Sprintf("%s_%d", id, i+1)
			}
			if j, dup := state.index[rowID]; dup {
				merged := state.rows[j]
				for field, value := range row {
					merged[field] = jsonval.Clone(value)
				}
				continue
			}
			state.index[rowID] = len(state.rows)
			state.rows = append(state.rows, row.Clone())
		}
		s.tables[id] = state
	}
	return s
}

// WithMeta seeds the store with previously exported concurrency state.
func (s *Store) WithMeta(meta Meta) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range meta.SheetVersions {
		s.seedSheetVersions[id] = v
	}
	for key, v := range meta.RowVersions {
		s.seedRowVersions[key] = v
	}
	for key, owner := range meta.RowLocks {
		s.rowLocks[key] = owner
	}
	for key, owner := range meta.CellLocks {
		rowKey, field, ok := splitCellKey(key)
		if !ok {
			continue
		}
		if s.cellLocks[rowKey] == nil {
			s.cellLocks[rowKey] = make(map[string]string)
		}
		s.cellLocks[rowKey][field] = owner
	}
	s.conflicts.Total += meta.Conflicts.Total
	for reason, n := range meta.Conflicts.ByReason {
		if s.conflicts.ByReason == nil {
			s.conflicts.ByReason = make(map[string]int)
		}
		s.conflicts.ByReason[reason] += n
	}
	return s
}

func rowKey(sheetID sheet.ID, rowID string) string {
	return string(sheetID) + "::" + rowID
}

func cellKey(sheetID sheet.ID, rowID, field string) string {
	return rowKey(sheetID, rowID) + "::" + field
}

func splitCellKey(key string) (rowKey, field string, ok bool) {
	i := strings.LastIndex(key, "::")
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+2:], true
}

func (s *Store) table(id sheet.ID, keyField string) *tableState {
	state, ok := s.tables[id]
	if !ok {
		if keyField == "" {
			keyField = sheet.KeyField(id)
		}
		state = &tableState{keyField: keyField, index: make(map[string]int)}
		s.tables[id] = state
	}
	return state
}

// SheetVersion returns the current version of a sheet, falling back to
// seeded state for sheets this store has not materialised.
func (s *Store) SheetVersion(id sheet.ID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sheetVersionLocked(id)
}

func (s *Store) sheetVersionLocked(id sheet.ID) int64 {
	if v, ok := s.sheetVersions[id]; ok {
		return v
	}
	return s.seedSheetVersions[id]
}

// RowVersion returns the current version of a row.
func (s *Store) RowVersion(id sheet.ID, rowID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rowVersionLocked(rowKey(id, rowID))
}

func (s *Store) rowVersionLocked(key string) int64 {
	if v, ok := s.rowVersions[key]; ok {
		return v
	}
	return s.seedRowVersions[key]
}

// Row returns a copy of the identified row.
func (s *Store) Row(id sheet.ID, rowID string) (sheet.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.tables[id]
	if !ok {
		return nil, false
	}
	i, ok := state.index[rowID]
	if !ok {
		return nil, false
	}
	return state.rows[i].Clone(), true
}

// Select returns copies of every row in a sheet, in storage order.
func (s *Store) Select(id sheet.ID) []sheet.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.tables[id]
	if !ok {
		return nil
	}
	rows := make([]sheet.Row, len(state.rows))
	for i, row := range state.rows {
		rows[i] = row.Clone()
	}
	return rows
}

// Upsert merges a single row by the sheet's key field, bypassing version
// expectations. Lock guards still apply.
func (s *Store) Upsert(id sheet.ID, row sheet.Row) (ApplyReport, error) {
	return s.ApplyPatches([]Patch{{Op: PatchUpsertRows, SheetID: id, Rows: []sheet.Row{row}}})
}

// Delete removes a single row by id, bypassing version expectations. Lock
// guards still apply.
func (s *Store) Delete(id sheet.ID, rowID string) (ApplyReport, error) {
	return s.ApplyPatches([]Patch{{Op: PatchDeleteRows, SheetID: id, RowIDs: []string{rowID}}})
}

// ApplyPatches applies each patch in order, skipping any that fails its
// version or lock guards. Guard failures are conflicts, not errors; the
// returned error is reserved for malformed patches.
func (s *Store) ApplyPatches(patches []Patch) (ApplyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report ApplyReport
	for _, patch := range patches {
		switch patch.Op {
		case PatchUpsertRows:
			if len(patch.Rows) == 0 {
				return report, apperrors.WithMetadata(apperrors.CodePatchMissingRow, "upsert patch carries no rows",
					map[string]string{"sheet_id": string(patch.SheetID)})
			}
			for _, row := range patch.Rows {
				if row == nil {
					return report, apperrors.WithMetadata(apperrors.CodePatchMissingRow, "upsert patch carries a nil row",
						map[string]string{"sheet_id": string(patch.SheetID)})
				}
				applied, err := s.upsertRowLocked(patch, row, &report)
				if err != nil {
					return report, err
				}
				if applied {
					report.Applied++
				}
			}
		case PatchDeleteRows:
			for _, rowID := range patch.RowIDs {
				if s.deleteRowLocked(patch, rowID, &report) {
					report.Deleted++
				}
			}
		default:
			return report, apperrors.WithMetadata(apperrors.CodePatchConflict, "unknown patch op",
				map[string]string{"op": string(patch.Op)})
		}
	}
	return report, nil
}

// checkGuardsLocked runs the shared guard ladder for one row mutation.
// Order matters: sheet version, then row version, then row lock, then cell
// locks.
func (s *Store) checkGuardsLocked(patch Patch, rowID string, deleting bool, report *ApplyReport) bool {
	if patch.ExpectedSheetVersion != nil && *patch.ExpectedSheetVersion != s.sheetVersionLocked(patch.SheetID) {
		s.recordConflictLocked(report, Conflict{Reason: ReasonSheetVersion, SheetID: patch.SheetID, RowID: rowID})
		return false
	}
	key := rowKey(patch.SheetID, rowID)
	if patch.ExpectedRowVersion != nil && *patch.ExpectedRowVersion != s.rowVersionLocked(key) {
		s.recordConflictLocked(report, Conflict{Reason: ReasonRowVersion, SheetID: patch.SheetID, RowID: rowID})
		return false
	}
	if owner, locked := s.rowLocks[key]; locked && owner != patch.Owner {
		s.recordConflictLocked(report, Conflict{Reason: ReasonRowLocked, SheetID: patch.SheetID, RowID: rowID, Owner: owner})
		return false
	}
	for field, owner := range s.cellLocks[key] {
		if owner == patch.Owner {
			continue
		}
		if deleting || len(patch.ChangedFields) == 0 || containsField(patch.ChangedFields, field) {
			s.recordConflictLocked(report, Conflict{Reason: ReasonCellLocked, SheetID: patch.SheetID, RowID: rowID, Field: field, Owner: owner})
			return false
		}
	}
	return true
}

func containsField(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

func (s *Store) recordConflictLocked(report *ApplyReport, c Conflict) {
	report.Conflicts = append(report.Conflicts, c)
	s.conflicts.record(c.Reason)
}

func (s *Store) upsertRowLocked(patch Patch, row sheet.Row, report *ApplyReport) (bool, error) {
	state := s.table(patch.SheetID, patch.KeyField)
	keyField := state.keyField
	if patch.KeyField != "" {
		keyField = patch.KeyField
	}

	rowID, ok := row.KeyValue(keyField)
	if !ok {
		return false, apperrors.WithMetadata(apperrors.CodeStoreMissingRowID, "row has no usable key value",
			map[string]string{
				"sheet_id":  string(patch.SheetID),
				"key_field": keyField,
			})
	}

	if !s.checkGuardsLocked(patch, rowID, false, report) {
		return false, nil
	}

	incoming := row.Clone()
	incoming[keyField] = rowID

	if i, exists := state.index[rowID]; exists {
		merged := state.rows[i]
		for field, value := range incoming {
			merged[field] = jsonval.Clone(value)
		}
	} else {
		state.index[rowID] = len(state.rows)
		state.rows = append(state.rows, incoming)
	}

	s.bumpVersionsLocked(patch.SheetID, rowID)
	return true, nil
}

func (s *Store) deleteRowLocked(patch Patch, rowID string, report *ApplyReport) bool {
	state, ok := s.tables[patch.SheetID]
	if !ok {
		return false
	}
	i, exists := state.index[rowID]
	if !exists {
		return false
	}

	if !s.checkGuardsLocked(patch, rowID, true, report) {
		return false
	}

	state.rows = append(state.rows[:i], state.rows[i+1:]...)
	delete(state.index, rowID)
	// Shift positions rather than re-deriving ids so rows living under a
	// synthetic identity stay reachable.
	for id, j := range state.index {
		if j > i {
			state.index[id] = j - 1
		}
	}

	s.bumpVersionsLocked(patch.SheetID, rowID)
	return true
}

func (s *Store) bumpVersionsLocked(sheetID sheet.ID, rowID string) {
	s.sheetVersions[sheetID] = s.sheetVersionLocked(sheetID) + 1
	key := rowKey(sheetID, rowID)
	s.rowVersions[key] = s.rowVersionLocked(key) + 1
}

// LockRow takes or re-takes a row lock for the owner. Locking a row already
// held by another owner fails.
func (s *Store) LockRow(sheetID sheet.ID, rowID, owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rowKey(sheetID, rowID)
	if current, held := s.rowLocks[key]; held && current != owner {
		return false
	}
	s.rowLocks[key] = owner
	return true
}

// UnlockRow releases a row lock. An empty owner releases regardless of
// holder.
func (s *Store) UnlockRow(sheetID sheet.ID, rowID, owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rowKey(sheetID, rowID)
	current, held := s.rowLocks[key]
	if !held || (owner != "" && current != owner) {
		return false
	}
	delete(s.rowLocks, key)
	return true
}

// LockCell takes or re-takes a single-cell lock for the owner.
func (s *Store) LockCell(sheetID sheet.ID, rowID, field, owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rowKey(sheetID, rowID)
	if current, held := s.cellLocks[key][field]; held && current != owner {
		return false
	}
	if s.cellLocks[key] == nil {
		s.cellLocks[key] = make(map[string]string)
	}
	s.cellLocks[key][field] = owner
	return true
}

// UnlockCell releases a cell lock. An empty owner releases regardless of
// holder.
func (s *Store) UnlockCell(sheetID sheet.ID, rowID, field, owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rowKey(sheetID, rowID)
	current, held := s.cellLocks[key][field]
	if !held || (owner != "" && current != owner) {
		return false
	}
	delete(s.cellLocks[key], field)
	if len(s.cellLocks[key]) == 0 {
		delete(s.cellLocks, key)
	}
	return true
}

// Snapshot exports a deep copy of all tables.
func (s *Store) Snapshot() sheet.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(sheet.Snapshot, len(s.tables))
	for id, state := range s.tables {
		rows := make([]sheet.Row, len(state.rows))
		for i, row := range state.rows {
			rows[i] = row.Clone()
		}
		snap[id] = sheet.Table{KeyField: state.keyField, Rows: rows}
	}
	return snap
}

// Meta exports the store's concurrency state with seeded versions merged
// under live ones.
func (s *Store) Meta() Meta {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := Meta{
		SheetVersions: make(map[sheet.ID]int64),
		RowVersions:   make(map[string]int64),
		RowLocks:      make(map[string]string, len(s.rowLocks)),
		CellLocks:     make(map[string]string),
		Conflicts:     s.conflicts.Clone(),
	}
	for id, v := range s.seedSheetVersions {
		meta.SheetVersions[id] = v
	}
	for id, v := range s.sheetVersions {
		meta.SheetVersions[id] = v
	}
	for key, v := range s.seedRowVersions {
		meta.RowVersions[key] = v
	}
	for key, v := range s.rowVersions {
		meta.RowVersions[key] = v
	}
	for key, owner := range s.rowLocks {
		meta.RowLocks[key] = owner
	}
	for rk, fields := range s.cellLocks {
		for field, owner := range fields {
			meta.CellLocks[rk+"::"+field] = owner
		}
	}
	return meta
}

// Conflicts returns a copy of the cumulative conflict counters.
func (s *Store) Conflicts() ConflictStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conflicts.Clone()
}
