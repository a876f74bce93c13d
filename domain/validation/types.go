package validation

import (
	"stratval/domain/core"
)

// Determination is the final outcome of a validation run.
type Determination string

const (
	DeterminationPending     Determination = "PENDING"
	DeterminationValidated   Determination = "VALIDATED"
	DeterminationInvalidated Determination = "INVALIDATED"
	DeterminationConditional Determination = "CONDITIONAL"
	DeterminationBlocked     Determination = "BLOCKED"
	DeterminationRetryLater  Determination = "RETRY_LATER"
	DeterminationFailed      Determination = "FAILED"
)

// Terminal reports whether the determination ends the candidate's run.
// RETRY_LATER is not terminal: the candidate stays pending.
func (d Determination) Terminal() bool {
	switch d {
	case DeterminationValidated, DeterminationInvalidated,
		DeterminationConditional, DeterminationBlocked, DeterminationFailed:
		return true
	}
	return false
}

// WindowSpec is one backtest window of a walk-forward schedule.
type WindowSpec struct {
	ID    int    `yaml:"id" json:"id"`
	Start string `yaml:"start" json:"start"` // YYYY-MM-DD
	End   string `yaml:"end" json:"end"`     // YYYY-MM-DD
}

// WindowOutcome is the parsed result of one backtest window. Statistic
// fields are pointers so a missing stat is distinguishable from zero.
type WindowOutcome struct {
	Window      WindowSpec `json:"window"`
	Success     bool       `json:"success"`
	Error       string     `json:"error,omitempty"`
	RateLimited bool       `json:"rate_limited,omitempty"`
	EngineCrash bool       `json:"engine_crash,omitempty"`

	CAGR        *float64 `json:"cagr,omitempty"`
	Sharpe      *float64 `json:"sharpe,omitempty"`
	MaxDrawdown *float64 `json:"max_drawdown,omitempty"`
	Alpha       *float64 `json:"alpha,omitempty"`
	TotalReturn *float64 `json:"total_return,omitempty"`
	WinRate     *float64 `json:"win_rate,omitempty"`
	TotalTrades *int     `json:"total_trades,omitempty"`

	BacktestID string `json:"backtest_id,omitempty"`
	RawPath    string `json:"raw_path,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
}

// Aggregate summarizes the successful windows of a walk-forward run.
// Pointer fields are nil when no window produced the statistic.
type Aggregate struct {
	MeanCAGR      *float64 `json:"mean_cagr,omitempty"`
	MedianCAGR    *float64 `json:"median_cagr,omitempty"`
	Sharpe        *float64 `json:"sharpe,omitempty"`
	CAGR          *float64 `json:"cagr,omitempty"`
	WorstDrawdown *float64 `json:"worst_drawdown,omitempty"`
	Consistency   *float64 `json:"consistency,omitempty"`
	TotalTrades   int      `json:"total_trades"`
	WindowsRun    int      `json:"windows_run"`
	WindowsPassed int      `json:"windows_passed"`
}

// WalkForward is the full result of a walk-forward execution.
type WalkForward struct {
	StrategyID  core.StrategyID `json:"strategy_id"`
	RunID       core.RunID      `json:"run_id"`
	Windows     []WindowOutcome `json:"windows"`
	Aggregate   *Aggregate      `json:"aggregate,omitempty"`
	Outcome     Determination   `json:"outcome"`
	IsTransient bool            `json:"is_transient"`
	Reason      string          `json:"reason,omitempty"`
}

// GateResult records one gate comparison.
type GateResult struct {
	Name      string  `json:"name"`
	Threshold float64 `json:"threshold"`
	Actual    float64 `json:"actual"`
	Passed    bool    `json:"passed"`
}

// GateReport is the outcome of evaluating all gates.
type GateReport struct {
	Results   []GateResult `json:"results"`
	AllPassed bool         `json:"all_passed"`
}

// FlagSeverity ranks a sanity flag.
type FlagSeverity string

const (
	SeverityInfo     FlagSeverity = "info"
	SeverityWarning  FlagSeverity = "warning"
	SeverityCritical FlagSeverity = "critical"
)

// SanityFlag marks a result that looks too good, or otherwise suspect.
type SanityFlag struct {
	Check    string       `json:"check"`
	Severity FlagSeverity `json:"severity"`
	Message  string       `json:"message"`
}

// Significance is the result of the statistical stage.
type Significance struct {
	PValue         float64 `json:"p_value"`
	AdjustedAlpha  float64 `json:"adjusted_alpha"`
	Comparisons    int     `json:"comparisons"`
	Significant    bool    `json:"significant"`
	ObservedSharpe float64 `json:"observed_sharpe"`
	SampleYears    float64 `json:"sample_years"`
}

// RegimeReport is the result of the regime-consistency stage.
type RegimeReport struct {
	Consistent   bool    `json:"consistent"`
	SharpeStddev float64 `json:"sharpe_stddev"`
	ReturnStddev float64 `json:"return_stddev"`
	Notes        string  `json:"notes,omitempty"`
}

// VerifyStatus is the outcome of one pre-validation check.
type VerifyStatus string

const (
	VerifyPass VerifyStatus = "pass"
	VerifyWarn VerifyStatus = "warn"
	VerifyFail VerifyStatus = "fail"
)

// VerifyCheck is one named structural check over a candidate.
type VerifyCheck struct {
	Name    string       `json:"name"`
	Status  VerifyStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// VerifyReport aggregates all checks. Overall follows the worst
// individual status.
type VerifyReport struct {
	StrategyID core.StrategyID `json:"strategy_id"`
	Checks     []VerifyCheck   `json:"checks"`
	Overall    VerifyStatus    `json:"overall"`
}

// DataResolution records how one data requirement was resolved.
type DataResolution struct {
	Requirement string `json:"requirement"`
	Resolved    bool   `json:"resolved"`
	Source      string `json:"source,omitempty"`
	Tier        string `json:"tier,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DataAudit is the full resolution report for a candidate.
type DataAudit struct {
	StrategyID  core.StrategyID  `json:"strategy_id"`
	Resolutions []DataResolution `json:"resolutions"`
	AllResolved bool             `json:"all_resolved"`
}
