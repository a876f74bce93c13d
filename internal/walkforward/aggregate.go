package walkforward

import (
	"github.com/montanaflynn/stats"

	"stratval/domain/validation"
)

// Aggregate summarizes the successful windows. Only windows that both
// succeeded and reported a statistic contribute to that statistic's
// aggregate; a statistic no window reported stays nil.
func Aggregate(windows []validation.WindowOutcome) *validation.Aggregate {
	agg := &validation.Aggregate{WindowsRun: len(windows)}

	var cagrs, sharpes, drawdowns []float64
	positive := 0
	for _, w := range windows {
		if !w.Success {
			continue
		}
		agg.WindowsPassed++
		if w.CAGR != nil {
			cagrs = append(cagrs, *w.CAGR)
			if *w.CAGR > 0 {
				positive++
			}
		}
		if w.Sharpe != nil {
			sharpes = append(sharpes, *w.Sharpe)
		}
		if w.MaxDrawdown != nil {
			drawdowns = append(drawdowns, *w.MaxDrawdown)
		}
		if w.TotalTrades != nil {
			agg.TotalTrades += *w.TotalTrades
		}
	}

	if len(cagrs) > 0 {
		if mean, err := stats.Mean(cagrs); err == nil {
			agg.MeanCAGR = &mean
			agg.CAGR = &mean
		}
		if median, err := stats.Median(cagrs); err == nil {
			agg.MedianCAGR = &median
		}
		consistency := float64(positive) / float64(len(cagrs))
		agg.Consistency = &consistency
	}
	if len(sharpes) > 0 {
		if mean, err := stats.Mean(sharpes); err == nil {
			agg.Sharpe = &mean
		}
	}
	if len(drawdowns) > 0 {
		if worst, err := stats.Max(drawdowns); err == nil {
			agg.WorstDrawdown = &worst
		}
	}

	return agg
}
