package replaygate

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tavernforge/statevar/internal/event"
	"github.com/tavernforge/statevar/internal/jsonval"
	"github.com/tavernforge/statevar/internal/platform/config"
	apperrors "github.com/tavernforge/statevar/internal/platform/errors"
	"github.com/tavernforge/statevar/internal/sheet"
	"github.com/tavernforge/statevar/internal/storage"
	storesqlite "github.com/tavernforge/statevar/internal/storage/sqlite"
	"github.com/tavernforge/statevar/internal/writer"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("replaygate", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.EventLogPath != "data/statevar.db" {
		t.Errorf("EventLogPath = %q", cfg.EventLogPath)
	}
	if cfg.ChangedCellsFail != 5 {
		t.Errorf("ChangedCellsFail = %d, want 5", cfg.ChangedCellsFail)
	}
}

func TestParseConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("STATEVAR_EVENT_LOG_PATH", "/tmp/env.db")

	fs := flag.NewFlagSet("replaygate", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-event-log", "/tmp/flag.db", "-changed-cells-fail", "9", "-start", "/tmp/start.json"})
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.EventLogPath != "/tmp/flag.db" {
		t.Errorf("EventLogPath = %q, want flag value", cfg.EventLogPath)
	}
	if cfg.ChangedCellsFail != 9 {
		t.Errorf("ChangedCellsFail = %d, want 9", cfg.ChangedCellsFail)
	}
	if cfg.StartPath != "/tmp/start.json" {
		t.Errorf("StartPath = %q, want flag value", cfg.StartPath)
	}
}

// seedJournal runs one turn through the live writer, journals the accepted
// events, and returns the resulting snapshot.
func seedJournal(t *testing.T, path string) sheet.Snapshot {
	t.Helper()
	ctx := context.Background()

	w := writer.New()
	batch := event.NewBatch([]event.Event{
		{Domain: "global_state", EntityID: "GLOBAL", Path: "gameState.当前场景", Op: event.OpSet, Value: jsonval.V("酒馆"), CreatedAt: 1000},
		{Domain: "inventory", EntityID: "INVENTORY", Path: "背包", Op: event.OpPush, Value: jsonval.V(map[string]any{
			"物品ID": "itm-1", "物品名称": "铁剑", "数量": float64(1),
		}), CreatedAt: 2000},
	}, event.BatchMeta{TurnID: "t1", Source: "runtime"})
	res, err := w.Consume(ctx, batch, writer.Options{})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	store, err := storesqlite.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	records := make([]storage.EventLogRecord, 0, len(res.Accepted))
	for _, evt := range res.Accepted {
		records = append(records, storage.RecordFromEvent(evt))
	}
	if err := store.AppendEvents(ctx, records); err != nil {
		t.Fatalf("append: %v", err)
	}
	return res.Snapshot
}

func writeBaseline(t *testing.T, path string, snap sheet.Snapshot) {
	t.Helper()
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal baseline: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write baseline: %v", err)
	}
}

func TestRunPassesOnFaithfulBaseline(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "journal.db")
	baselinePath := filepath.Join(dir, "baseline.json")

	snap := seedJournal(t, dbPath)
	writeBaseline(t, baselinePath, snap)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.EventLogPath = dbPath
	cfg.BaselinePath = baselinePath

	var out bytes.Buffer
	if err := run(context.Background(), cfg, &out); err != nil {
		t.Fatalf("run: %v (output %s)", err, out.String())
	}
	if !strings.Contains(out.String(), `"verdict": "pass"`) {
		t.Errorf("report missing pass verdict: %s", out.String())
	}
}

func TestRunFailsOnDivergentBaseline(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "journal.db")
	baselinePath := filepath.Join(dir, "baseline.json")

	snap := seedJournal(t, dbPath)
	tbl := snap.Table(sheet.ItemInventory)
	tbl.Rows[0] = sheet.Row{"物品ID": "itm-phantom", "物品名称": "幻影"}
	snap[sheet.ItemInventory] = tbl
	writeBaseline(t, baselinePath, snap)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.EventLogPath = dbPath
	cfg.BaselinePath = baselinePath
	cfg.MissingRowsFail = 1

	var out bytes.Buffer
	if err := run(context.Background(), cfg, &out); err == nil {
		t.Fatalf("run succeeded for divergent baseline: %s", out.String())
	}
}

func TestRunRequiresBaseline(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.BaselinePath = ""

	if err := run(context.Background(), cfg, &bytes.Buffer{}); !apperrors.IsCode(err, apperrors.CodeBaselineUnreadable) {
		t.Fatalf("error = %v, want baseline-unreadable code", err)
	}
}
