// Package config loads engine configuration from the environment.
package config

// Config holds engine-wide settings. Replay gate thresholds default to the
// values the gate ships with; operators tighten or loosen them per
// deployment.
type Config struct {
	EventLogPath string `env:"STATEVAR_EVENT_LOG_PATH" envDefault:"data/statevar.db"`
	BaselinePath string `env:"STATEVAR_BASELINE_PATH"`
	// StartPath optionally names the pre-journal snapshot the replay folds
	// onto. Empty means replay from empty state.
	StartPath string `env:"STATEVAR_START_PATH"`

	InvalidRowsWarn  int `env:"STATEVAR_GATE_INVALID_ROWS_WARN" envDefault:"1"`
	InvalidRowsFail  int `env:"STATEVAR_GATE_INVALID_ROWS_FAIL" envDefault:"3"`
	MissingRowsWarn  int `env:"STATEVAR_GATE_MISSING_ROWS_WARN" envDefault:"1"`
	MissingRowsFail  int `env:"STATEVAR_GATE_MISSING_ROWS_FAIL" envDefault:"3"`
	ChangedRowsWarn  int `env:"STATEVAR_GATE_CHANGED_ROWS_WARN" envDefault:"1"`
	ChangedRowsFail  int `env:"STATEVAR_GATE_CHANGED_ROWS_FAIL" envDefault:"3"`
	ChangedCellsWarn int `env:"STATEVAR_GATE_CHANGED_CELLS_WARN" envDefault:"1"`
	ChangedCellsFail int `env:"STATEVAR_GATE_CHANGED_CELLS_FAIL" envDefault:"5"`
}

// Load parses engine configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
