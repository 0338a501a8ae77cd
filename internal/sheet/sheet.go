// Package sheet defines the virtual table vocabulary shared by the engine:
// sheet identifiers, rows, snapshots, and the natural key field of each
// known sheet.
package sheet

import (
	"github.com/tavernforge/statevar/internal/jsonval"
)

// ID identifies a named table (sheet).
type ID string

// Sheets participating in the event-sourced write path.
const (
	SysGlobalState     ID = "SYS_GlobalState"
	CharacterResources ID = "CHARACTER_Resources"
	ItemInventory      ID = "ITEM_Inventory"
	QuestActive        ID = "QUEST_Active"
	StoryMainline      ID = "STORY_Mainline"
	PhoneThreads       ID = "PHONE_Threads"
	WorldNews          ID = "WORLD_News"
	ForumPosts         ID = "FORUM_Posts"
)

// Audit sheets written by the state-variable writer.
const (
	SysStateVarEventLog ID = "SYS_StateVarEventLog"
	SysStateVarApplyLog ID = "SYS_StateVarApplyLog"
)

// Well-known row identities.
const (
	GlobalStateRowID = "GLOBAL_STATE"
	DefaultCharacter = "PLAYER"
	DefaultInventory = "INVENTORY"
	DefaultGlobal    = "GLOBAL"
)

// defaultKeyFields maps each known sheet to its natural key column.
var defaultKeyFields = map[ID]string{
	SysGlobalState:         "_global_id",
	SysStateVarEventLog:    "event_id",
	SysStateVarApplyLog:    "apply_id",
	"SYS_CommandAudit":     "command_id",
	"SYS_TransactionAudit": "tx_id",
	"SYS_ValidationIssue":  "issue_id",
	"SYS_MappingRegistry":  "domain",
	"NPC_Registry":         "NPC_ID",
	ItemInventory:          "物品ID",
	QuestActive:            "任务ID",
	"FACTION_Standing":     "势力ID",
	"ECON_Ledger":          "ledger_id",
	"COMBAT_Encounter":     "单位名称",
	"COMBAT_BattleMap":     "单位名称",
	"LOG_Summary":          "编码索引",
	"LOG_Outline":          "编码索引",
	"DICE_Pool":            "ID",
	"SKILL_Library":        "SKILL_ID",
	"CHARACTER_Skills":     "LINK_ID",
	"FEAT_Library":         "FEAT_ID",
	"CHARACTER_Feats":      "LINK_ID",
	"CHARACTER_Registry":   "CHAR_ID",
	"CHARACTER_Attributes": "CHAR_ID",
	CharacterResources:     "CHAR_ID",
	"PHONE_Device":         "device_id",
	"PHONE_Contacts":       "contact_id",
	PhoneThreads:           "thread_id",
	"PHONE_Messages":       "message_id",
	"PHONE_Pending":        "pending_id",
	StoryMainline:          "mainline_id",
	"STORY_Triggers":       "trigger_id",
	"STORY_Milestones":     "milestone_id",
	WorldNews:              "news_id",
	ForumPosts:             "post_id",
	"CONTRACT_Registry":    "contract_id",
	"EXPLORATION_Map_Data": "LocationName",
	"COMBAT_Map_Visuals":   "SceneName",
}

// KeyField returns the natural key column for a sheet, defaulting to "id"
// for sheets without a registered key.
func KeyField(id ID) string {
	if field, ok := defaultKeyFields[id]; ok {
		return field
	}
	return "id"
}

// PilotSheets lists the sheets that participate in event-sourced writes.
// All other sheets are projection-only.
var PilotSheets = []ID{SysGlobalState, CharacterResources, ItemInventory}

// IsPilot reports whether a sheet is on the event-sourcing allow-list.
func IsPilot(id ID) bool {
	for _, pilot := range PilotSheets {
		if pilot == id {
			return true
		}
	}
	return false
}

// Row is a flat mapping from column name to cell value.
type Row map[string]any

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return Row{}
	}
	out := make(Row, len(r))
	for field, value := range r {
		out[field] = jsonval.Clone(value)
	}
	return out
}

// KeyValue resolves the row's identity under the given key field. Only
// non-empty strings and finite numbers are usable identities.
func (r Row) KeyValue(keyField string) (string, bool) {
	value, ok := r[keyField]
	if !ok {
		return "", false
	}
	text := jsonval.Text(value)
	if text == "" {
		return "", false
	}
	if _, isBool := value.(bool); isBool {
		return "", false
	}
	return text, true
}

// Table is a sheet snapshot: its key field and rows in storage order.
type Table struct {
	KeyField string `json:"keyField"`
	Rows     []Row  `json:"rows"`
}

// Clone returns a deep copy of the table snapshot.
func (t Table) Clone() Table {
	rows := make([]Row, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = row.Clone()
	}
	return Table{KeyField: t.KeyField, Rows: rows}
}

// Snapshot maps sheet ids to table snapshots.
type Snapshot map[ID]Table

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, tbl := range s {
		out[id] = tbl.Clone()
	}
	return out
}

// Table returns the named table, falling back to an empty table with the
// sheet's default key field.
func (s Snapshot) Table(id ID) Table {
	if tbl, ok := s[id]; ok {
		if tbl.KeyField == "" {
			tbl.KeyField = KeyField(id)
		}
		return tbl
	}
	return Table{KeyField: KeyField(id)}
}
