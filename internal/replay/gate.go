package replay

import (
	"fmt"

	"github.com/tavernforge/statevar/internal/platform/config"
)

// Verdict is the gate's release decision.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictWarn Verdict = "warn"
	VerdictFail Verdict = "fail"
)

// Thresholds holds the warn and fail floors for each diff metric. A metric
// at or above its floor raises the corresponding verdict.
type Thresholds struct {
	InvalidRowsWarn  int
	InvalidRowsFail  int
	MissingRowsWarn  int
	MissingRowsFail  int
	ChangedRowsWarn  int
	ChangedRowsFail  int
	ChangedCellsWarn int
	ChangedCellsFail int
}

// DefaultThresholds returns the gate's shipped floors.
func DefaultThresholds() Thresholds {
	return Thresholds{
		InvalidRowsWarn:  1,
		InvalidRowsFail:  3,
		MissingRowsWarn:  1,
		MissingRowsFail:  3,
		ChangedRowsWarn:  1,
		ChangedRowsFail:  3,
		ChangedCellsWarn: 1,
		ChangedCellsFail: 5,
	}
}

// ThresholdsFromConfig lifts gate floors out of the engine configuration.
func ThresholdsFromConfig(cfg config.Config) Thresholds {
	return Thresholds{
		InvalidRowsWarn:  cfg.InvalidRowsWarn,
		InvalidRowsFail:  cfg.InvalidRowsFail,
		MissingRowsWarn:  cfg.MissingRowsWarn,
		MissingRowsFail:  cfg.MissingRowsFail,
		ChangedRowsWarn:  cfg.ChangedRowsWarn,
		ChangedRowsFail:  cfg.ChangedRowsFail,
		ChangedCellsWarn: cfg.ChangedCellsWarn,
		ChangedCellsFail: cfg.ChangedCellsFail,
	}
}

// GateResult is the verdict with the reasons that raised it.
type GateResult struct {
	Verdict Verdict  `json:"verdict"`
	Reasons []string `json:"reasons"`
}

// Gate grades a diff against the thresholds. invalidRows is the count of
// event-log rows that failed parsing; key-quality noise in the diff is
// never graded. A fail reason is never downgraded by later metrics, and a
// diff that is not matched but trips no threshold still warns.
func Gate(diff Result, invalidRows int, th Thresholds) GateResult {
	res := GateResult{Verdict: VerdictPass}

	raise := func(verdict Verdict) {
		if verdict == VerdictFail || res.Verdict == VerdictPass {
			res.Verdict = verdict
		}
	}
	grade := func(metric string, value, warn, fail int) {
		switch {
		case value >= fail:
			res.Reasons = append(res.Reasons, fmt.Sprintf("%s>=%d", metric, fail))
			raise(VerdictFail)
		case value >= warn:
			res.Reasons = append(res.Reasons, fmt.Sprintf("%s>=%d", metric, warn))
			raise(VerdictWarn)
		}
	}

	grade("invalidRows", invalidRows, th.InvalidRowsWarn, th.InvalidRowsFail)
	grade("missingRows", diff.Totals.MissingInBaseline+diff.Totals.MissingInReplay, th.MissingRowsWarn, th.MissingRowsFail)
	grade("changedRows", diff.Totals.ChangedRows, th.ChangedRowsWarn, th.ChangedRowsFail)
	grade("changedCells", diff.Totals.ChangedCells, th.ChangedCellsWarn, th.ChangedCellsFail)

	if len(res.Reasons) == 0 && !diff.Matched {
		res.Reasons = append(res.Reasons, "diff-not-matched")
		raise(VerdictWarn)
	}
	return res
}
