package writer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tavernforge/statevar/internal/event"
	"github.com/tavernforge/statevar/internal/jsonval"
	"github.com/tavernforge/statevar/internal/mapping"
	"github.com/tavernforge/statevar/internal/sheet"
)

const inventoryKeyField = "物品ID"

func inventoryCommands(evt event.Event, working sheet.Snapshot, now time.Time) []Command {
	switch evt.Op {
	case event.OpPush, event.OpUpsert:
		rows := normalizeItemRows(evt.Value, now)
		if len(rows) == 0 {
			return nil
		}
		return []Command{upsertCommand(sheet.ItemInventory, inventoryKeyField, evt.ID, rows...)}
	case event.OpAdd:
		itemID, delta, ok := resolveQuantityDelta(evt)
		if !ok {
			return nil
		}
		current, _ := snapshotRow(working, sheet.ItemInventory, itemID)
		row := sheet.Row{
			inventoryKeyField: itemID,
			"数量":              rowNumber(current, "数量") + delta,
		}
		cmd := upsertCommand(sheet.ItemInventory, inventoryKeyField, evt.ID, row)
		cmd.ChangedFields = []string{"数量"}
		return []Command{cmd}
	case event.OpDelete:
		rowIDs := resolveDeleteTargets(evt, working)
		if len(rowIDs) == 0 {
			return nil
		}
		return []Command{deleteCommand(sheet.ItemInventory, inventoryKeyField, evt.ID, rowIDs...)}
	case event.OpSet:
		itemID, field, ok := resolveIndexedField(evt.Path, working)
		if !ok {
			return nil
		}
		row := sheet.Row{inventoryKeyField: itemID, field: evt.Value.Clone().Raw()}
		cmd := upsertCommand(sheet.ItemInventory, inventoryKeyField, evt.ID, row)
		cmd.ChangedFields = []string{field}
		return []Command{cmd}
	}
	return nil
}

// inventoryVersionRow resolves the row id an inventory event's version
// guard applies to. Deletes reuse the delete-target resolution; other ops
// need an explicit item id in the payload.
func inventoryVersionRow(evt event.Event, working sheet.Snapshot) string {
	if evt.Op == event.OpDelete {
		if ids := resolveDeleteTargets(evt, working); len(ids) > 0 {
			return ids[0]
		}
		return ""
	}
	if obj, ok := evt.Value.Object(); ok {
		return textField(sheet.Row(obj), inventoryKeyField, "item_id", "id")
	}
	return ""
}

// normalizeItemRows shapes an event payload (one object or a list of
// objects) into canonical inventory rows: stable item id, display name,
// quantity, category, and a normalised quality mirrored onto the legacy
// rarity column.
func normalizeItemRows(value jsonval.Value, now time.Time) []sheet.Row {
	var payloads []map[string]any
	if obj, ok := value.Object(); ok {
		payloads = append(payloads, obj)
	} else if list, ok := value.Array(); ok {
		for _, item := range list {
			if obj, isObj := item.(map[string]any); isObj {
				payloads = append(payloads, obj)
			}
		}
	}

	rows := make([]sheet.Row, 0, len(payloads))
	for i, payload := range payloads {
		row := sheet.Row(payload).Clone()

		itemID := textField(row, inventoryKeyField, "item_id", "id")
		if itemID == "" {
			itemID = fmt.Sprintf("item_%d_%d", now.UnixMilli(), i)
		}
		name := textField(row, "物品名称", "名称", "name")
		quantity := float64(1)
		if num, ok := numberField(row, "数量", "quantity", "qty"); ok {
			quantity = num
		}
		category := textField(row, "类别", "类型", "category")
		description := textField(row, "描述", "description")
		quality := NormalizeQuality(textField(row, "品质", "稀有度", "quality", "rarity"))

		for _, alias := range []string{"item_id", "id", "名称", "name", "quantity", "qty", "类型", "category", "description", "quality", "rarity"} {
			delete(row, alias)
		}

		row[inventoryKeyField] = itemID
		if name != "" {
			row["物品名称"] = name
		}
		row["数量"] = quantity
		if category != "" {
			row["类别"] = category
		}
		if description != "" {
			row["描述"] = description
		}
		row["品质"] = quality
		row["稀有度"] = quality
		rows = append(rows, row)
	}
	return rows
}

func resolveQuantityDelta(evt event.Event) (itemID string, delta float64, ok bool) {
	if obj, isObj := evt.Value.Object(); isObj {
		row := sheet.Row(obj)
		itemID = textField(row, inventoryKeyField, "item_id", "id")
		if num, numOK := numberField(row, "delta", "数量变更", "quantityDelta"); numOK {
			delta = num
			ok = true
		}
	} else if num, numOK := evt.Value.Number(); numOK {
		delta = num
		ok = true
	}

	if itemID == "" {
		entity := strings.TrimSpace(evt.EntityID)
		if entity != "" && entity != "entity" && entity != sheet.DefaultInventory {
			itemID = entity
		}
	}
	if itemID == "" {
		return "", 0, false
	}
	return itemID, delta, ok
}

// resolveDeleteTargets finds the rows a delete event addresses: an explicit
// id in the payload, a scalar id value, or an index path into the
// pre-event inventory order.
func resolveDeleteTargets(evt event.Event, working sheet.Snapshot) []string {
	if obj, ok := evt.Value.Object(); ok {
		if id := textField(sheet.Row(obj), inventoryKeyField, "id", "item_id"); id != "" {
			return []string{id}
		}
	}
	if !evt.Value.IsNil() {
		if _, isObj := evt.Value.Object(); !isObj {
			if _, isArr := evt.Value.Array(); !isArr {
				if id := strings.TrimSpace(evt.Value.Text()); id != "" {
					return []string{id}
				}
			}
		}
	}

	if index, ok := inventoryIndex(evt.Path); ok {
		tbl := working.Table(sheet.ItemInventory)
		if index >= 0 && index < len(tbl.Rows) {
			if id, idOK := tbl.Rows[index].KeyValue(tbl.KeyField); idOK {
				return []string{id}
			}
		}
	}
	return nil
}

// resolveIndexedField maps a path like 背包.2.数量 to the addressed row id
// and column.
func resolveIndexedField(path string, working sheet.Snapshot) (itemID, field string, ok bool) {
	normalized := mapping.NormalizePath(path)
	parts := strings.Split(normalized, ".")
	if len(parts) < 3 || parts[0] != "背包" {
		return "", "", false
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil || index < 0 {
		return "", "", false
	}
	tbl := working.Table(sheet.ItemInventory)
	if index >= len(tbl.Rows) {
		return "", "", false
	}
	id, idOK := tbl.Rows[index].KeyValue(tbl.KeyField)
	if !idOK {
		return "", "", false
	}
	return id, parts[2], true
}

func inventoryIndex(path string) (int, bool) {
	normalized := mapping.NormalizePath(path)
	parts := strings.Split(normalized, ".")
	if len(parts) < 2 || parts[0] != "背包" {
		return 0, false
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

func textField(row sheet.Row, fields ...string) string {
	for _, field := range fields {
		raw, ok := row[field]
		if !ok || raw == nil {
			continue
		}
		switch raw.(type) {
		case map[string]any, []any, bool:
			continue
		}
		if text := strings.TrimSpace(jsonval.Text(raw)); text != "" {
			return text
		}
	}
	return ""
}

func numberField(row sheet.Row, fields ...string) (float64, bool) {
	for _, field := range fields {
		if raw, ok := row[field]; ok {
			if num, numOK := jsonval.Number(raw); numOK {
				return num, true
			}
		}
	}
	return 0, false
}
