package regime

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"stratval/domain/validation"
)

// Stability thresholds: a strategy whose per-window Sharpe or return
// varies more than this across market regimes is not consistent.
const (
	maxSharpeStddev = 0.5
	maxReturnStddev = 0.15
)

// Analyze measures cross-window dispersion. Each window covers a
// different market regime; heavy dispersion means the edge only exists
// in some of them. Fewer than two successful windows cannot show
// dispersion and count as consistent.
func Analyze(windows []validation.WindowOutcome) *validation.RegimeReport {
	var sharpes, returns []float64
	for _, w := range windows {
		if !w.Success {
			continue
		}
		if w.Sharpe != nil {
			sharpes = append(sharpes, *w.Sharpe)
		}
		if w.CAGR != nil {
			returns = append(returns, *w.CAGR)
		}
	}

	report := &validation.RegimeReport{Consistent: true}
	if len(sharpes) < 2 && len(returns) < 2 {
		report.Notes = "not enough windows to measure regime dispersion"
		return report
	}

	if len(sharpes) >= 2 {
		if sd, err := stats.StandardDeviationSample(sharpes); err == nil {
			report.SharpeStddev = sd
			if sd > maxSharpeStddev {
				report.Consistent = false
				report.Notes = fmt.Sprintf("Sharpe stddev %.2f exceeds %.2f", sd, maxSharpeStddev)
			}
		}
	}
	if len(returns) >= 2 {
		if sd, err := stats.StandardDeviationSample(returns); err == nil {
			report.ReturnStddev = sd
			if sd > maxReturnStddev {
				report.Consistent = false
				if report.Notes != "" {
					report.Notes += "; "
				}
				report.Notes += fmt.Sprintf("return stddev %.2f exceeds %.2f", sd, maxReturnStddev)
			}
		}
	}
	return report
}
