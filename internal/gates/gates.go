package gates

import (
	"stratval/domain/validation"
	"stratval/internal/config"
)

// Evaluator compares walk-forward aggregates against the configured
// thresholds.
type Evaluator struct {
	cfg config.GatesConfig
}

func New(cfg config.GatesConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate runs all gates in order. Boundary values pass: every
// threshold comparison is inclusive. A statistic the aggregate lacks
// produces no result row but fails the report; a missing aggregate is
// not a pass.
func (e *Evaluator) Evaluate(agg *validation.Aggregate) *validation.GateReport {
	report := &validation.GateReport{AllPassed: true}
	if agg == nil {
		report.AllPassed = false
		return report
	}

	gate := func(name string, threshold float64, actual *float64, passed func(a float64) bool) {
		if actual == nil {
			report.AllPassed = false
			return
		}
		r := validation.GateResult{
			Name:      name,
			Threshold: threshold,
			Actual:    *actual,
			Passed:    passed(*actual),
		}
		if !r.Passed {
			report.AllPassed = false
		}
		report.Results = append(report.Results, r)
	}

	gate("min_sharpe", e.cfg.MinSharpe, agg.Sharpe,
		func(a float64) bool { return a >= e.cfg.MinSharpe })
	gate("min_consistency", e.cfg.MinConsistency, agg.Consistency,
		func(a float64) bool { return a >= e.cfg.MinConsistency })
	gate("max_drawdown", e.cfg.MaxDrawdown, agg.WorstDrawdown,
		func(a float64) bool { return a <= e.cfg.MaxDrawdown })
	gate("min_cagr", e.cfg.MinCAGR, agg.CAGR,
		func(a float64) bool { return a >= e.cfg.MinCAGR })

	trades := float64(agg.TotalTrades)
	gate("min_trades", float64(e.cfg.MinTrades), &trades,
		func(a float64) bool { return a >= float64(e.cfg.MinTrades) })

	return report
}
