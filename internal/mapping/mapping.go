// Package mapping routes narrative state paths and sheet rows to the
// domain, sheet, and entity that own them.
package mapping

import (
	"regexp"
	"strings"

	"github.com/tavernforge/statevar/internal/sheet"
)

// Target names the owner of a piece of state: which domain handles it,
// which sheet stores it, and which entity row it belongs to. Path is the
// canonical event path for the target.
type Target struct {
	Domain   string
	SheetID  sheet.ID
	EntityID string
	Path     string
}

// Domain names for the built-in path-addressable domains.
const (
	DomainGlobalState = "global_state"
	DomainCharacter   = "character_resources"
	DomainInventory   = "inventory"
)

// globalStateKeys lists the top-level game state fields that live on the
// singleton global state row.
var globalStateKeys = map[string]bool{
	"当前场景":  true,
	"场景描述":  true,
	"当前日期":  true,
	"游戏时间":  true,
	"上轮时间":  true,
	"流逝时长":  true,
	"世界坐标X": true,
	"世界坐标Y": true,
	"天气状况":  true,
	"战斗模式":  true,
	"当前回合":  true,
	"系统通知":  true,
	"当前地点":  true,
}

var arrayIndexPattern = regexp.MustCompile(`\[(\d+)\]`)

// NormalizePath rewrites a raw state path into dotted segments: array
// indexes become numeric segments and the leading gameState prefix is
// dropped.
func NormalizePath(path string) string {
	normalized := arrayIndexPattern.ReplaceAllString(strings.TrimSpace(path), ".$1")
	normalized = strings.TrimPrefix(normalized, "gameState.")
	return normalized
}

// IsGlobalStateKey reports whether the field lives on the global state row.
func IsGlobalStateKey(field string) bool {
	return globalStateKeys[field]
}

// MapPath resolves a raw state path to its owning target. Paths outside
// the known namespaces return ok=false and are left for sheet-addressed
// routing.
func MapPath(path string) (Target, bool) {
	normalized := NormalizePath(path)
	if normalized == "" {
		return Target{}, false
	}

	head := normalized
	if i := strings.Index(normalized, "."); i >= 0 {
		head = normalized[:i]
	}

	if globalStateKeys[head] {
		return Target{
			Domain:   DomainGlobalState,
			SheetID:  sheet.SysGlobalState,
			EntityID: sheet.DefaultGlobal,
			Path:     "gameState." + normalized,
		}, true
	}

	if strings.HasPrefix(normalized, "角色.") {
		return Target{
			Domain:   DomainCharacter,
			SheetID:  sheet.CharacterResources,
			EntityID: sheet.DefaultCharacter,
			Path:     "gameState." + normalized,
		}, true
	}

	if normalized == "背包" || strings.HasPrefix(normalized, "背包.") {
		return Target{
			Domain:   DomainInventory,
			SheetID:  sheet.ItemInventory,
			EntityID: sheet.DefaultInventory,
			Path:     "gameState." + normalized,
		}, true
	}

	return Target{}, false
}

// MapSheetRow resolves the entity identity of a row addressed by sheet.
// Identity falls back to the sheet's singleton row id when the row carries
// no usable key.
func MapSheetRow(sheetID sheet.ID, row sheet.Row) Target {
	switch sheetID {
	case sheet.SysGlobalState:
		entity := rowText(row, sheet.GlobalStateRowID, "_global_id", "id")
		return Target{Domain: DomainGlobalState, SheetID: sheetID, EntityID: entity, Path: sheetPath(sheetID, entity)}
	case sheet.CharacterResources:
		entity := rowText(row, sheet.DefaultCharacter, "CHAR_ID", "char_id", "id")
		return Target{Domain: DomainCharacter, SheetID: sheetID, EntityID: entity, Path: sheetPath(sheetID, entity)}
	case sheet.ItemInventory:
		entity := rowText(row, sheet.DefaultInventory, "物品ID", "item_id", "id", "物品名称")
		return Target{Domain: DomainInventory, SheetID: sheetID, EntityID: entity, Path: sheetPath(sheetID, entity)}
	default:
		entity := rowText(row, string(sheetID), sheet.KeyField(sheetID), "id")
		return Target{Domain: strings.ToLower(string(sheetID)), SheetID: sheetID, EntityID: entity, Path: sheetPath(sheetID, entity)}
	}
}

func sheetPath(sheetID sheet.ID, entityID string) string {
	return "sheet." + string(sheetID) + "." + entityID
}

// rowText returns the first non-empty string among the named row fields,
// or the fallback when none yields one.
func rowText(row sheet.Row, fallback string, fields ...string) string {
	for _, field := range fields {
		if text, ok := row[field].(string); ok && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	return fallback
}
