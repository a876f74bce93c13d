package sanity

import (
	"fmt"

	"stratval/domain/validation"
	"stratval/internal/config"
)

// benchmarkMultiple is how many times the benchmark's annual return a
// strategy can claim before the result needs a human look.
const benchmarkMultiple = 4

// Checker flags results that are too good to trust. A critical flag
// invalidates the candidate; lesser flags downgrade it to conditional.
type Checker struct {
	cfg           config.SanityConfig
	benchmarkCAGR float64
}

// New builds a checker. benchmarkCAGR anchors the benchmark-multiple
// band; zero disables that check.
func New(cfg config.SanityConfig, benchmarkCAGR float64) *Checker {
	return &Checker{cfg: cfg, benchmarkCAGR: benchmarkCAGR}
}

// Check inspects the aggregate and returns zero or more flags.
func (c *Checker) Check(agg *validation.Aggregate) []validation.SanityFlag {
	var flags []validation.SanityFlag
	if agg == nil {
		return flags
	}

	if agg.Sharpe != nil {
		s := *agg.Sharpe
		switch {
		case s >= c.cfg.SharpeImpossible:
			flags = append(flags, flag("sharpe_band", validation.SeverityCritical,
				"Sharpe %.2f is not achievable without a data or logic error", s))
		case s >= c.cfg.SharpeSuspicious:
			flags = append(flags, flag("sharpe_band", validation.SeverityWarning,
				"Sharpe %.2f is in the suspicious band", s))
		case s >= c.cfg.SharpeExceptional:
			flags = append(flags, flag("sharpe_band", validation.SeverityInfo,
				"Sharpe %.2f is exceptional, review before trusting", s))
		}
	}

	if agg.CAGR != nil {
		switch {
		case *agg.CAGR >= c.cfg.CAGRImpossible:
			flags = append(flags, flag("cagr_band", validation.SeverityCritical,
				"CAGR %.0f%% is not achievable over a multi-year sample", *agg.CAGR*100))
		case c.benchmarkCAGR > 0 && *agg.CAGR >= c.benchmarkCAGR*benchmarkMultiple:
			flags = append(flags, flag("benchmark_multiple", validation.SeverityWarning,
				"CAGR %.0f%% is over %dx the %.0f%% benchmark return",
				*agg.CAGR*100, benchmarkMultiple, c.benchmarkCAGR*100))
		}
	}

	if agg.WorstDrawdown != nil && agg.CAGR != nil &&
		*agg.WorstDrawdown < 0.01 && *agg.CAGR > 0.15 {
		flags = append(flags, flag("drawdown_floor", validation.SeverityWarning,
			"%.1f%% CAGR with under 1%% drawdown suggests unrealistic fills", *agg.CAGR*100))
	}

	return flags
}

// CheckWindows applies per-window checks that the aggregate hides,
// currently the win-rate band.
func (c *Checker) CheckWindows(windows []validation.WindowOutcome) []validation.SanityFlag {
	var flags []validation.SanityFlag
	for _, w := range windows {
		if !w.Success || w.WinRate == nil {
			continue
		}
		if *w.WinRate >= c.cfg.WinRateSuspicious {
			flags = append(flags, flag("win_rate_band", validation.SeverityWarning,
				"window %d win rate %.0f%% is suspiciously high", w.Window.ID, *w.WinRate*100))
		}
	}
	return flags
}

// HasCritical reports whether any flag is critical.
func HasCritical(flags []validation.SanityFlag) bool {
	for _, f := range flags {
		if f.Severity == validation.SeverityCritical {
			return true
		}
	}
	return false
}

func flag(check string, severity validation.FlagSeverity, format string, args ...any) validation.SanityFlag {
	return validation.SanityFlag{
		Check:    check,
		Severity: severity,
		Message:  fmt.Sprintf(format, args...),
	}
}
