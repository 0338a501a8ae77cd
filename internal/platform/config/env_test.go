package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.InvalidRowsWarn != 1 || cfg.InvalidRowsFail != 3 {
		t.Errorf("invalid rows thresholds = %d/%d, want 1/3", cfg.InvalidRowsWarn, cfg.InvalidRowsFail)
	}
	if cfg.ChangedCellsWarn != 1 || cfg.ChangedCellsFail != 5 {
		t.Errorf("changed cells thresholds = %d/%d, want 1/5", cfg.ChangedCellsWarn, cfg.ChangedCellsFail)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("STATEVAR_GATE_CHANGED_CELLS_FAIL", "9")
	t.Setenv("STATEVAR_EVENT_LOG_PATH", "/tmp/engine.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChangedCellsFail != 9 {
		t.Errorf("ChangedCellsFail = %d, want 9", cfg.ChangedCellsFail)
	}
	if cfg.EventLogPath != "/tmp/engine.db" {
		t.Errorf("EventLogPath = %q, want /tmp/engine.db", cfg.EventLogPath)
	}
}
