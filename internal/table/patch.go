package table

import "github.com/tavernforge/statevar/internal/sheet"

// PatchOp names a table store mutation.
type PatchOp string

const (
	// PatchUpsertRows merges rows into a sheet by key field.
	PatchUpsertRows PatchOp = "upsert_sheet_rows"
	// PatchDeleteRows removes rows from a sheet by row id.
	PatchDeleteRows PatchOp = "delete_sheet_rows"
)

// Patch is one guarded mutation against a sheet. Expectation fields are
// optional; nil means the caller holds no expectation and the patch applies
// unconditionally with respect to that guard.
type Patch struct {
	Op      PatchOp
	SheetID sheet.ID

	// Rows to merge for PatchUpsertRows.
	Rows []sheet.Row
	// RowIDs to remove for PatchDeleteRows.
	RowIDs []string
	// KeyField overrides the sheet's default key column.
	KeyField string

	ExpectedSheetVersion *int64
	ExpectedRowVersion   *int64

	// Owner identifies the actor applying the patch for lock arbitration.
	Owner string
	// ChangedFields narrows cell lock checks to the named columns. Empty
	// means the patch may touch any column.
	ChangedFields []string
}

// Conflict records one rejected patch and why it was rejected.
type Conflict struct {
	Reason  string
	SheetID sheet.ID
	RowID   string
	Field   string
	Owner   string
}

// Conflict reasons, ordered by check precedence.
const (
	ReasonSheetVersion = "sheet_version_conflict"
	ReasonRowVersion   = "row_version_conflict"
	ReasonRowLocked    = "row_locked"
	ReasonCellLocked   = "cell_locked"
)

// ApplyReport summarises one ApplyPatches call.
type ApplyReport struct {
	Applied   int
	Deleted   int
	Conflicts []Conflict
}

// ConflictStats accumulates conflicts across the store's lifetime.
type ConflictStats struct {
	Total    int            `json:"total"`
	ByReason map[string]int `json:"by_reason"`
}

func (s *ConflictStats) record(reason string) {
	if s.ByReason == nil {
		s.ByReason = make(map[string]int)
	}
	s.Total++
	s.ByReason[reason]++
}

// Clone returns a copy safe for callers to retain.
func (s ConflictStats) Clone() ConflictStats {
	out := ConflictStats{Total: s.Total, ByReason: make(map[string]int, len(s.ByReason))}
	for reason, n := range s.ByReason {
		out.ByReason[reason] = n
	}
	return out
}
