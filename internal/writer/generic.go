package writer

import (
	"strings"

	"github.com/tavernforge/statevar/internal/event"
	"github.com/tavernforge/statevar/internal/sheet"
)

// genericCommands handles sheet-addressed domains through their registry
// binding. Only upserts and deletes are meaningful for whole-row domains.
func genericCommands(evt event.Event, binding DomainBinding) []Command {
	switch evt.Op {
	case event.OpUpsert, event.OpPush:
		payload, ok := evt.Value.Object()
		if !ok {
			return nil
		}
		rowID := resolveBindingRowID(evt, binding, sheet.Row(payload))
		if rowID == "" {
			return nil
		}
		row := sheet.Row(payload).Clone()
		row[binding.KeyField] = rowID
		cmd := upsertCommand(binding.SheetID, binding.KeyField, evt.ID, row)
		cmd.ChangedFields = changedFields(row, binding.KeyField)
		return []Command{cmd}
	case event.OpDelete:
		var payload sheet.Row
		if obj, ok := evt.Value.Object(); ok {
			payload = sheet.Row(obj)
		} else if text := strings.TrimSpace(evt.Value.Text()); text != "" {
			return []Command{deleteCommand(binding.SheetID, binding.KeyField, evt.ID, text)}
		}
		rowID := resolveBindingRowID(evt, binding, payload)
		if rowID == "" {
			return nil
		}
		return []Command{deleteCommand(binding.SheetID, binding.KeyField, evt.ID, rowID)}
	}
	return nil
}

func resolveBindingRowID(evt event.Event, binding DomainBinding, payload sheet.Row) string {
	if payload != nil {
		if id := textField(payload, binding.IDAliases...); id != "" {
			return id
		}
	}
	entity := strings.TrimSpace(evt.EntityID)
	if entity != "" && entity != "entity" {
		return entity
	}
	return binding.DefaultEntity
}
