// Package bridge translates legacy write commands into state-variable
// events so older callers ride the event-sourced path without changes.
// Translation is deterministic: the same commands in the same turn always
// yield the same event ids and idempotency keys.
package bridge

import (
	"fmt"
	"strings"

	"github.com/tavernforge/statevar/internal/event"
	"github.com/tavernforge/statevar/internal/jsonval"
	"github.com/tavernforge/statevar/internal/mapping"
	"github.com/tavernforge/statevar/internal/sheet"
)

// Legacy action names accepted by the bridge.
const (
	ActionSet             = "set"
	ActionAdd             = "add"
	ActionPush            = "push"
	ActionDelete          = "delete"
	ActionUpsertSheetRows = "upsert_sheet_rows"
)

// LegacyCommand is one write in the pre-event command shape.
type LegacyCommand struct {
	Action string        `json:"action"`
	Key    string        `json:"key,omitempty"`
	Value  jsonval.Value `json:"value,omitempty"`
	// ExpectedRowVersion carries the caller's optimistic version, when it
	// holds one.
	ExpectedRowVersion *int64 `json:"expected_row_version,omitempty"`
}

// Options scopes one translation call.
type Options struct {
	TurnID string
	Source string
	// IncludeSheets admits sheet-row upserts for sheets beyond the
	// event-sourced pilots.
	IncludeSheets []sheet.ID
}

// Translate converts legacy commands into normalised events. Commands that
// address nothing the event path understands are dropped; translation never
// fails.
func Translate(commands []LegacyCommand, opts Options) []event.Event {
	turnID := strings.TrimSpace(opts.TurnID)
	if turnID == "" {
		turnID = "turn-unknown"
	}
	source := strings.TrimSpace(opts.Source)
	if source == "" {
		source = "bridge"
	}

	var events []event.Event
	for i, cmd := range commands {
		switch cmd.Action {
		case ActionSet, ActionAdd, ActionPush, ActionDelete:
			target, ok := mapping.MapPath(cmd.Key)
			if !ok {
				continue
			}
			events = append(events, event.New(event.Event{
				ID:              fmt.Sprintf("legacy_%s_%d", turnID, i),
				TurnID:          turnID,
				Source:          source,
				Domain:          target.Domain,
				EntityID:        target.EntityID,
				Path:            target.Path,
				Op:              event.Op(cmd.Action),
				Value:           cmd.Value,
				ExpectedVersion: cmd.ExpectedRowVersion,
				IdempotencyKey:  fmt.Sprintf("%s:legacy:%d:%s:%s", turnID, i, cmd.Action, target.Path),
			}))
		case ActionUpsertSheetRows:
			events = append(events, translateSheetRows(cmd, i, turnID, source, opts.IncludeSheets)...)
		}
	}
	return events
}

// sheetRowsPayload is one {sheetId, rows} block inside an
// upsert_sheet_rows command.
type sheetRowsPayload struct {
	sheetID sheet.ID
	rows    []sheet.Row
}

func translateSheetRows(cmd LegacyCommand, index int, turnID, source string, include []sheet.ID) []event.Event {
	var events []event.Event
	for p, payload := range sheetRowsPayloads(cmd.Value) {
		if !sheet.IsPilot(payload.sheetID) && !containsSheet(include, payload.sheetID) {
			continue
		}
		for r, row := range payload.rows {
			target := mapping.MapSheetRow(payload.sheetID, row)
			events = append(events, event.New(event.Event{
				ID:             fmt.Sprintf("sheet_%s_%d_%d_%d", turnID, index, p, r),
				TurnID:         turnID,
				Source:         source,
				Domain:         target.Domain,
				EntityID:       target.EntityID,
				Path:           target.Path,
				Op:             event.OpUpsert,
				Value:          jsonval.V(map[string]any(row)),
				IdempotencyKey: fmt.Sprintf("%s:sheet:%s:%s:%d:%d", turnID, payload.sheetID, target.EntityID, index, r),
			}))
		}
	}
	return events
}

func sheetRowsPayloads(value jsonval.Value) []sheetRowsPayload {
	var raws []map[string]any
	if obj, ok := value.Object(); ok {
		raws = append(raws, obj)
	} else if list, ok := value.Array(); ok {
		for _, item := range list {
			if obj, isObj := item.(map[string]any); isObj {
				raws = append(raws, obj)
			}
		}
	}

	payloads := make([]sheetRowsPayload, 0, len(raws))
	for _, raw := range raws {
		sheetID := sheet.ID(jsonval.Text(raw["sheetId"]))
		if sheetID == "" {
			sheetID = sheet.ID(jsonval.Text(raw["sheet_id"]))
		}
		if sheetID == "" {
			continue
		}
		rowList, ok := raw["rows"].([]any)
		if !ok {
			continue
		}
		payload := sheetRowsPayload{sheetID: sheetID}
		for _, item := range rowList {
			if obj, isObj := item.(map[string]any); isObj {
				payload.rows = append(payload.rows, sheet.Row(obj))
			}
		}
		if len(payload.rows) > 0 {
			payloads = append(payloads, payload)
		}
	}
	return payloads
}

func containsSheet(list []sheet.ID, id sheet.ID) bool {
	for _, item := range list {
		if item == id {
			return true
		}
	}
	return false
}
