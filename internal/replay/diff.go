// Package replay rebuilds state from the event journal and verifies the
// rebuilt tables against a baseline snapshot. The diff is structural:
// field order never counts as a difference, row identity does.
package replay

import (
	"fmt"
	"strings"

	"github.com/tavernforge/statevar/internal/jsonval"
	"github.com/tavernforge/statevar/internal/sheet"
)

// CellChange records one field whose value differs between baseline and
// replay.
type CellChange struct {
	RowID    string `json:"row_id"`
	Field    string `json:"field"`
	Baseline string `json:"baseline"`
	Replay   string `json:"replay"`
}

// SheetDiff is the comparison result for one sheet. MissingKeyRows and
// DuplicateKeyRows count identity noise across both sides; they are
// diagnostic only and never graded.
type SheetDiff struct {
	SheetID  sheet.ID `json:"sheet_id"`
	KeyField string   `json:"key_field"`

	MissingKeyRows   int `json:"missing_key_rows"`
	DuplicateKeyRows int `json:"duplicate_key_rows"`

	MissingInBaseline []string     `json:"missing_in_baseline"`
	MissingInReplay   []string     `json:"missing_in_replay"`
	ChangedRows       []string     `json:"changed_rows"`
	ChangedCells      []CellChange `json:"changed_cells"`
	RowOrderChanged   bool         `json:"row_order_changed"`
}

// Totals aggregates diff counts across sheets. Only the missing and
// changed counts feed Matched and the gate; the key-quality counts and
// the order flag are diagnostic.
type Totals struct {
	MissingInBaseline int `json:"missing_in_baseline"`
	MissingInReplay   int `json:"missing_in_replay"`
	ChangedRows       int `json:"changed_rows"`
	ChangedCells      int `json:"changed_cells"`

	MissingKeyRows   int  `json:"missing_key_rows"`
	DuplicateKeyRows int  `json:"duplicate_key_rows"`
	RowOrderChanged  bool `json:"row_order_changed"`
}

// Result is a full snapshot comparison.
type Result struct {
	Sheets  []SheetDiff `json:"sheets"`
	Totals  Totals      `json:"totals"`
	Matched bool        `json:"matched"`
}

// Diff compares the replayed pilot sheets against the baseline. Sheets
// outside the pilot set are ignored on both sides.
func Diff(baseline, replayed sheet.Snapshot) Result {
	var res Result
	for _, sheetID := range sheet.PilotSheets {
		diff := diffSheet(sheetID, baseline.Table(sheetID), replayed.Table(sheetID))
		res.Sheets = append(res.Sheets, diff)
		res.Totals.MissingKeyRows += diff.MissingKeyRows
		res.Totals.DuplicateKeyRows += diff.DuplicateKeyRows
		res.Totals.MissingInBaseline += len(diff.MissingInBaseline)
		res.Totals.MissingInReplay += len(diff.MissingInReplay)
		res.Totals.ChangedRows += len(diff.ChangedRows)
		res.Totals.ChangedCells += len(diff.ChangedCells)
		res.Totals.RowOrderChanged = res.Totals.RowOrderChanged || diff.RowOrderChanged
	}
	res.Matched = res.Totals.MissingInBaseline == 0 &&
		res.Totals.MissingInReplay == 0 &&
		res.Totals.ChangedRows == 0 &&
		res.Totals.ChangedCells == 0
	return res
}

func diffSheet(sheetID sheet.ID, baseline, replayed sheet.Table) SheetDiff {
	keyField := baseline.KeyField
	if keyField == "" {
		keyField = replayed.KeyField
	}
	if keyField == "" {
		keyField = sheet.KeyField(sheetID)
	}

	diff := SheetDiff{SheetID: sheetID, KeyField: keyField}

	baseRows, baseOrder, baseNoise := indexRows(baseline.Rows, keyField)
	replayRows, replayOrder, replayNoise := indexRows(replayed.Rows, keyField)
	diff.MissingKeyRows = baseNoise.missingKey + replayNoise.missingKey
	diff.DuplicateKeyRows = baseNoise.duplicateKey + replayNoise.duplicateKey

	for _, id := range baseOrder {
		if _, ok := replayRows[id]; !ok {
			diff.MissingInReplay = append(diff.MissingInReplay, id)
		}
	}
	for _, id := range replayOrder {
		if _, ok := baseRows[id]; !ok {
			diff.MissingInBaseline = append(diff.MissingInBaseline, id)
		}
	}

	for _, id := range baseOrder {
		replayRow, ok := replayRows[id]
		if !ok {
			continue
		}
		baseRow := baseRows[id]
		changed := false
		for _, field := range fieldUnion(baseRow, replayRow) {
			if field == keyField {
				continue
			}
			baseText := jsonval.Stringify(baseRow[field])
			replayText := jsonval.Stringify(replayRow[field])
			if baseText != replayText {
				changed = true
				diff.ChangedCells = append(diff.ChangedCells, CellChange{
					RowID:    id,
					Field:    field,
					Baseline: baseText,
					Replay:   replayText,
				})
			}
		}
		if changed {
			diff.ChangedRows = append(diff.ChangedRows, id)
		}
	}

	diff.RowOrderChanged = orderChanged(baseOrder, replayOrder, baseRows, replayRows)
	return diff
}

type indexNoise struct {
	missingKey   int
	duplicateKey int
}

// indexRows assigns each row an identity under the key field. Rows without
// one get a positional synthetic id so they still participate in the diff;
// duplicate identities keep the first row. Both cases are counted as
// noise, not as differences.
func indexRows(rows []sheet.Row, keyField string) (map[string]sheet.Row, []string, indexNoise) {
	indexed := make(map[string]sheet.Row, len(rows))
	order := make([]string, 0, len(rows))
	var noise indexNoise
	for i, row := range rows {
		if row == nil {
			noise.missingKey++
			continue
		}
		id, ok := row.KeyValue(keyField)
		if !ok {
			id = fmt.Sprintf("__missing_id_%d", i)
			noise.missingKey++
		}
		if _, dup := indexed[id]; dup {
			noise.duplicateKey++
			continue
		}
		indexed[id] = row
		order = append(order, id)
	}
	return indexed, order, noise
}

func fieldUnion(a, b sheet.Row) []string {
	fields := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for field := range a {
		if !seen[field] {
			seen[field] = true
			fields = append(fields, field)
		}
	}
	for field := range b {
		if !seen[field] {
			seen[field] = true
			fields = append(fields, field)
		}
	}
	return fields
}

// orderChanged reports whether rows common to both sides appear in a
// different relative order. A single common row carries no order signal.
func orderChanged(baseOrder, replayOrder []string, baseRows, replayRows map[string]sheet.Row) bool {
	var baseCommon, replayCommon []string
	for _, id := range baseOrder {
		if _, ok := replayRows[id]; ok {
			baseCommon = append(baseCommon, id)
		}
	}
	for _, id := range replayOrder {
		if _, ok := baseRows[id]; ok {
			replayCommon = append(replayCommon, id)
		}
	}
	if len(baseCommon) < 2 {
		return false
	}
	return strings.Join(baseCommon, "|") != strings.Join(replayCommon, "|")
}
