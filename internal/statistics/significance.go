package statistics

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"stratval/domain/validation"
	"stratval/internal/config"
)

// Analyzer tests whether an observed Sharpe ratio is distinguishable
// from zero after multiple-comparison correction.
type Analyzer struct {
	cfg config.StatisticsConfig
}

func New(cfg config.StatisticsConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Evaluate computes a one-sided p-value for the observed Sharpe over
// sampleYears of data. The Sharpe standard error uses the asymptotic
// approximation sqrt((1 + SR^2/2) / years). The alpha is Bonferroni
// adjusted by the configured comparison count.
func (a *Analyzer) Evaluate(observedSharpe, sampleYears float64) *validation.Significance {
	comparisons := a.cfg.Comparisons
	if comparisons < 1 {
		comparisons = 1
	}
	adjustedAlpha := a.cfg.BaseAlpha / float64(comparisons)

	sig := &validation.Significance{
		ObservedSharpe: observedSharpe,
		SampleYears:    sampleYears,
		Comparisons:    comparisons,
		AdjustedAlpha:  adjustedAlpha,
	}

	if sampleYears <= 0 {
		sig.PValue = 1.0
		return sig
	}

	se := math.Sqrt((1 + observedSharpe*observedSharpe/2) / sampleYears)
	z := observedSharpe / se

	normal := distuv.Normal{Mu: 0, Sigma: 1}
	sig.PValue = normal.Survival(z)
	sig.Significant = sig.PValue < adjustedAlpha
	return sig
}

// SampleYears measures the calendar span covered by a window schedule
// in years, counting overlap once.
func SampleYears(windows []validation.WindowSpec) float64 {
	if len(windows) == 0 {
		return 0
	}
	minStart, maxEnd := windows[0].Start, windows[0].End
	for _, w := range windows[1:] {
		if w.Start < minStart {
			minStart = w.Start
		}
		if w.End > maxEnd {
			maxEnd = w.End
		}
	}
	startYear := yearOf(minStart)
	endYear := yearOf(maxEnd)
	if startYear == 0 || endYear == 0 {
		return 0
	}
	return float64(endYear - startYear + 1)
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y := 0
	for _, c := range date[:4] {
		if c < '0' || c > '9' {
			return 0
		}
		y = y*10 + int(c-'0')
	}
	return y
}
