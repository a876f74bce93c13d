package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratval/domain/validation"
)

func window(id int, success bool, sharpe, cagr float64) validation.WindowOutcome {
	return validation.WindowOutcome{
		Window:  validation.WindowSpec{ID: id},
		Success: success,
		Sharpe:  &sharpe,
		CAGR:    &cagr,
	}
}

func TestAnalyzeStableStrategyIsConsistent(t *testing.T) {
	windows := []validation.WindowOutcome{
		window(1, true, 1.0, 0.10),
		window(2, true, 1.1, 0.12),
		window(3, true, 0.9, 0.08),
	}
	report := Analyze(windows)
	assert.True(t, report.Consistent)
	assert.Less(t, report.SharpeStddev, maxSharpeStddev)
}

func TestAnalyzeSharpeDispersionFlags(t *testing.T) {
	windows := []validation.WindowOutcome{
		window(1, true, 2.5, 0.10),
		window(2, true, 0.1, 0.11),
		window(3, true, 1.8, 0.09),
	}
	report := Analyze(windows)
	assert.False(t, report.Consistent)
	assert.Contains(t, report.Notes, "Sharpe stddev")
}

func TestAnalyzeReturnDispersionFlags(t *testing.T) {
	windows := []validation.WindowOutcome{
		window(1, true, 1.0, 0.45),
		window(2, true, 1.0, -0.20),
		window(3, true, 1.0, 0.40),
	}
	report := Analyze(windows)
	assert.False(t, report.Consistent)
	assert.Contains(t, report.Notes, "return stddev")
}

func TestAnalyzeIgnoresFailedWindows(t *testing.T) {
	windows := []validation.WindowOutcome{
		window(1, true, 1.0, 0.10),
		window(2, true, 1.05, 0.11),
		window(3, false, 99.0, 9.0), // failed, excluded from dispersion
	}
	report := Analyze(windows)
	assert.True(t, report.Consistent)
}

func TestAnalyzeTooFewWindows(t *testing.T) {
	report := Analyze([]validation.WindowOutcome{window(1, true, 1.0, 0.10)})
	require.True(t, report.Consistent)
	assert.Contains(t, report.Notes, "not enough windows")

	assert.True(t, Analyze(nil).Consistent)
}
