package sanity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratval/domain/validation"
	"stratval/internal/config"
)

func checker() *Checker {
	cfg := config.Default()
	return New(cfg.Sanity, cfg.Backtest.BenchmarkCAGR)
}

func agg(sharpe, cagr, dd float64) *validation.Aggregate {
	return &validation.Aggregate{Sharpe: &sharpe, CAGR: &cagr, WorstDrawdown: &dd}
}

func TestCheckCleanResultHasNoFlags(t *testing.T) {
	assert.Empty(t, checker().Check(agg(1.2, 0.12, 0.18)))
	assert.Empty(t, checker().Check(nil))
}

func TestCheckSharpeBands(t *testing.T) {
	cases := []struct {
		sharpe   float64
		severity validation.FlagSeverity
	}{
		{5.0, validation.SeverityCritical},
		{7.5, validation.SeverityCritical},
		{3.0, validation.SeverityWarning},
		{4.2, validation.SeverityWarning},
		{2.5, validation.SeverityInfo},
		{2.9, validation.SeverityInfo},
	}
	for _, tc := range cases {
		flags := checker().Check(agg(tc.sharpe, 0.10, 0.15))
		require.Len(t, flags, 1, "sharpe %.1f", tc.sharpe)
		assert.Equal(t, "sharpe_band", flags[0].Check)
		assert.Equal(t, tc.severity, flags[0].Severity, "sharpe %.1f", tc.sharpe)
	}
}

func TestCheckImpossibleCAGR(t *testing.T) {
	flags := checker().Check(agg(1.5, 2.5, 0.20))
	require.Len(t, flags, 1)
	assert.Equal(t, "cagr_band", flags[0].Check)
	assert.Equal(t, validation.SeverityCritical, flags[0].Severity)
}

func TestCheckBenchmarkMultiple(t *testing.T) {
	// 55% CAGR against a 10% benchmark is plausible but needs review.
	flags := checker().Check(agg(1.8, 0.55, 0.20))
	require.Len(t, flags, 1)
	assert.Equal(t, "benchmark_multiple", flags[0].Check)
	assert.Equal(t, validation.SeverityWarning, flags[0].Severity)

	// No benchmark configured disables the band.
	assert.Empty(t, New(config.Default().Sanity, 0).Check(agg(1.8, 0.55, 0.20)))
}

func TestCheckDrawdownFloor(t *testing.T) {
	flags := checker().Check(agg(1.5, 0.30, 0.005))
	require.Len(t, flags, 1)
	assert.Equal(t, "drawdown_floor", flags[0].Check)
	assert.Equal(t, validation.SeverityWarning, flags[0].Severity)
}

func TestCheckWindowsWinRate(t *testing.T) {
	winRate := 0.97
	ok := 0.6
	windows := []validation.WindowOutcome{
		{Window: validation.WindowSpec{ID: 1}, Success: true, WinRate: &winRate},
		{Window: validation.WindowSpec{ID: 2}, Success: true, WinRate: &ok},
		{Window: validation.WindowSpec{ID: 3}, Success: false, WinRate: &winRate},
	}
	flags := checker().CheckWindows(windows)
	require.Len(t, flags, 1)
	assert.Equal(t, "win_rate_band", flags[0].Check)
	assert.Contains(t, flags[0].Message, "window 1")
}

func TestHasCritical(t *testing.T) {
	assert.False(t, HasCritical(nil))
	assert.False(t, HasCritical([]validation.SanityFlag{
		{Severity: validation.SeverityWarning},
	}))
	assert.True(t, HasCritical([]validation.SanityFlag{
		{Severity: validation.SeverityWarning},
		{Severity: validation.SeverityCritical},
	}))
}
