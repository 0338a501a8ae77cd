// Package replaygate parses replay gate flags and runs the journal
// verification pipeline: load the baseline snapshot, replay the event
// journal, diff, and grade.
package replaygate

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tavernforge/statevar/internal/platform/config"
	apperrors "github.com/tavernforge/statevar/internal/platform/errors"
	"github.com/tavernforge/statevar/internal/platform/otel"
	"github.com/tavernforge/statevar/internal/replay"
	"github.com/tavernforge/statevar/internal/sheet"
	"github.com/tavernforge/statevar/internal/storage"
	storesqlite "github.com/tavernforge/statevar/internal/storage/sqlite"
	"github.com/tavernforge/statevar/internal/telemetry"
)

// ParseConfig parses environment and flags into engine configuration.
func ParseConfig(fs *flag.FlagSet, args []string) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	fs.StringVar(&cfg.EventLogPath, "event-log", cfg.EventLogPath, "The event journal SQLite database path")
	fs.StringVar(&cfg.BaselinePath, "baseline", cfg.BaselinePath, "The baseline snapshot JSON path")
	fs.StringVar(&cfg.StartPath, "start", cfg.StartPath, "The pre-journal snapshot JSON path (optional)")
	fs.IntVar(&cfg.ChangedRowsFail, "changed-rows-fail", cfg.ChangedRowsFail, "Changed-row count that fails the gate")
	fs.IntVar(&cfg.ChangedCellsFail, "changed-cells-fail", cfg.ChangedCellsFail, "Changed-cell count that fails the gate")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// Run executes the replay gate and writes the report to stdout. A fail
// verdict is returned as an error so the process exits non-zero.
func Run(ctx context.Context, cfg config.Config) error {
	return run(ctx, cfg, os.Stdout)
}

func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	shutdown, err := otel.Setup(ctx, "replaygate")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	baseline, err := loadSnapshot(cfg.BaselinePath)
	if err != nil {
		return err
	}

	var start sheet.Snapshot
	if cfg.StartPath != "" {
		if start, err = loadSnapshot(cfg.StartPath); err != nil {
			return err
		}
	}

	store, err := storesqlite.Open(cfg.EventLogPath)
	if err != nil {
		return fmt.Errorf("open event journal: %w", err)
	}
	defer store.Close()

	records, err := store.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("list journal: %w", err)
	}

	report, err := replay.Verify(ctx, storage.Rows(records), start, baseline, replay.ThresholdsFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("verify journal: %w", err)
	}

	emitter := telemetry.NewEmitter(store)
	if err := emitter.EmitGateVerdict(ctx, string(report.Gate.Verdict), report.Gate.Reasons); err != nil {
		return fmt.Errorf("emit verdict: %w", err)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if report.Gate.Verdict == replay.VerdictFail {
		return fmt.Errorf("replay gate failed: %v", report.Gate.Reasons)
	}
	return nil
}

func loadSnapshot(path string) (sheet.Snapshot, error) {
	if path == "" {
		return nil, apperrors.New(apperrors.CodeBaselineUnreadable, "baseline path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeBaselineUnreadable, "read snapshot", err)
	}
	var tables map[sheet.ID]sheet.Table
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeBaselineUnreadable, "decode snapshot", err)
	}
	return sheet.Snapshot(tables), nil
}
