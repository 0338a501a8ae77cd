package writer

import (
	"github.com/tavernforge/statevar/internal/sheet"
	"github.com/tavernforge/statevar/internal/table"
)

// CommandSource tags every command the writer emits.
const CommandSource = "ms:state-writer"

// Command is a sheet mutation derived from an accepted event. Commands are
// the writer's only output; they are folded onto the working snapshot,
// journalled to the audit sheets, and handed to the table store in apply
// mode.
type Command struct {
	Op       table.PatchOp `json:"op"`
	SheetID  sheet.ID      `json:"sheet_id"`
	Rows     []sheet.Row   `json:"rows,omitempty"`
	RowIDs   []string      `json:"row_ids,omitempty"`
	KeyField string        `json:"key_field"`

	ExpectedRowVersion *int64   `json:"expected_row_version,omitempty"`
	ChangedFields      []string `json:"changed_fields,omitempty"`

	EventID string `json:"event_id"`
	Source  string `json:"source"`
}

// Patch converts the command into a table store patch.
func (c Command) Patch() table.Patch {
	return table.Patch{
		Op:                 c.Op,
		SheetID:            c.SheetID,
		Rows:               c.Rows,
		RowIDs:             c.RowIDs,
		KeyField:           c.KeyField,
		ExpectedRowVersion: c.ExpectedRowVersion,
		Owner:              c.Source,
		ChangedFields:      c.ChangedFields,
	}
}

func upsertCommand(sheetID sheet.ID, keyField, eventID string, rows ...sheet.Row) Command {
	return Command{
		Op:       table.PatchUpsertRows,
		SheetID:  sheetID,
		Rows:     rows,
		KeyField: keyField,
		EventID:  eventID,
		Source:   CommandSource,
	}
}

func deleteCommand(sheetID sheet.ID, keyField, eventID string, rowIDs ...string) Command {
	return Command{
		Op:       table.PatchDeleteRows,
		SheetID:  sheetID,
		RowIDs:   rowIDs,
		KeyField: keyField,
		EventID:  eventID,
		Source:   CommandSource,
	}
}

// ApplyCommandsToSnapshot folds commands onto a snapshot: upserts merge
// field-by-field into the row with the same key, deletes drop rows. Only
// event-sourced pilot sheets are folded; audit and projection sheets pass
// through untouched.
func ApplyCommandsToSnapshot(snap sheet.Snapshot, commands []Command) sheet.Snapshot {
	if snap == nil {
		snap = sheet.Snapshot{}
	}
	for _, cmd := range commands {
		if !sheet.IsPilot(cmd.SheetID) {
			continue
		}
		tbl := snap.Table(cmd.SheetID)
		keyField := cmd.KeyField
		if keyField == "" {
			keyField = tbl.KeyField
		}

		switch cmd.Op {
		case table.PatchUpsertRows:
			for _, row := range cmd.Rows {
				rowID, ok := row.KeyValue(keyField)
				if !ok {
					continue
				}
				merged := false
				for i, existing := range tbl.Rows {
					if id, idOK := existing.KeyValue(keyField); idOK && id == rowID {
						next := existing.Clone()
						for field, value := range row {
							next[field] = value
						}
						tbl.Rows[i] = next
						merged = true
						break
					}
				}
				if !merged {
					tbl.Rows = append(tbl.Rows, row.Clone())
				}
			}
		case table.PatchDeleteRows:
			removed := tbl.Rows[:0:0]
			for _, existing := range tbl.Rows {
				id, idOK := existing.KeyValue(keyField)
				if idOK && containsString(cmd.RowIDs, id) {
					continue
				}
				removed = append(removed, existing)
			}
			tbl.Rows = removed
		}
		snap[cmd.SheetID] = tbl
	}
	return snap
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
