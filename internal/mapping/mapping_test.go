package mapping

import (
	"testing"

	"github.com/tavernforge/statevar/internal/sheet"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"array index", "背包[2].数量", "背包.2.数量"},
		{"game state prefix", "gameState.当前场景", "当前场景"},
		{"prefix and index", "gameState.世界坐标X", "世界坐标X"},
		{"plain", "角色.生命值", "角色.生命值"},
		{"whitespace", "  当前场景 ", "当前场景"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePath(tt.path); got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestMapPath(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantDomain string
		wantSheet  sheet.ID
		wantEntity string
		wantPath   string
		wantOK     bool
	}{
		{
			name:       "global state key",
			path:       "当前场景",
			wantDomain: DomainGlobalState,
			wantSheet:  sheet.SysGlobalState,
			wantEntity: sheet.DefaultGlobal,
			wantPath:   "gameState.当前场景",
			wantOK:     true,
		},
		{
			name:       "game state prefixed",
			path:       "gameState.天气状况",
			wantDomain: DomainGlobalState,
			wantSheet:  sheet.SysGlobalState,
			wantEntity: sheet.DefaultGlobal,
			wantPath:   "gameState.天气状况",
			wantOK:     true,
		},
		{
			name:       "nested global key",
			path:       "世界坐标X",
			wantDomain: DomainGlobalState,
			wantSheet:  sheet.SysGlobalState,
			wantEntity: sheet.DefaultGlobal,
			wantPath:   "gameState.世界坐标X",
			wantOK:     true,
		},
		{
			name:       "character",
			path:       "角色.生命值",
			wantDomain: "character_resources",
			wantSheet:  sheet.CharacterResources,
			wantEntity: sheet.DefaultCharacter,
			wantPath:   "gameState.角色.生命值",
			wantOK:     true,
		},
		{
			name:       "inventory root",
			path:       "背包",
			wantDomain: DomainInventory,
			wantSheet:  sheet.ItemInventory,
			wantEntity: sheet.DefaultInventory,
			wantPath:   "gameState.背包",
			wantOK:     true,
		},
		{
			name:       "inventory index",
			path:       "背包[0].数量",
			wantDomain: DomainInventory,
			wantSheet:  sheet.ItemInventory,
			wantEntity: sheet.DefaultInventory,
			wantPath:   "gameState.背包.0.数量",
			wantOK:     true,
		},
		{name: "unknown namespace", path: "天命.轮回", wantOK: false},
		{name: "empty", path: "", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MapPath(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("MapPath(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Domain != tt.wantDomain {
				t.Errorf("Domain = %q, want %q", got.Domain, tt.wantDomain)
			}
			if got.SheetID != tt.wantSheet {
				t.Errorf("SheetID = %q, want %q", got.SheetID, tt.wantSheet)
			}
			if got.EntityID != tt.wantEntity {
				t.Errorf("EntityID = %q, want %q", got.EntityID, tt.wantEntity)
			}
			if got.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", got.Path, tt.wantPath)
			}
		})
	}
}

func TestMapSheetRow(t *testing.T) {
	tests := []struct {
		name       string
		sheetID    sheet.ID
		row        sheet.Row
		wantDomain string
		wantEntity string
	}{
		{
			name:       "global default id",
			sheetID:    sheet.SysGlobalState,
			row:        sheet.Row{"当前场景": "酒馆"},
			wantDomain: DomainGlobalState,
			wantEntity: sheet.GlobalStateRowID,
		},
		{
			name:       "character explicit id",
			sheetID:    sheet.CharacterResources,
			row:        sheet.Row{"CHAR_ID": "NPC_01"},
			wantDomain: DomainCharacter,
			wantEntity: "NPC_01",
		},
		{
			name:       "character default",
			sheetID:    sheet.CharacterResources,
			row:        sheet.Row{"生命值": float64(10)},
			wantDomain: DomainCharacter,
			wantEntity: sheet.DefaultCharacter,
		},
		{
			name:       "inventory falls back to name",
			sheetID:    sheet.ItemInventory,
			row:        sheet.Row{"物品名称": "铁剑"},
			wantDomain: DomainInventory,
			wantEntity: "铁剑",
		},
		{
			name:       "generic sheet uses key field",
			sheetID:    sheet.QuestActive,
			row:        sheet.Row{"任务ID": "Q-001"},
			wantDomain: "quest_active",
			wantEntity: "Q-001",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapSheetRow(tt.sheetID, tt.row)
			if got.Domain != tt.wantDomain {
				t.Errorf("Domain = %q, want %q", got.Domain, tt.wantDomain)
			}
			if got.EntityID != tt.wantEntity {
				t.Errorf("EntityID = %q, want %q", got.EntityID, tt.wantEntity)
			}
			wantPath := "sheet." + string(tt.sheetID) + "." + tt.wantEntity
			if got.Path != wantPath {
				t.Errorf("Path = %q, want %q", got.Path, wantPath)
			}
		})
	}
}
