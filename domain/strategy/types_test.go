package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"stratval/domain/core"
)

func TestStrategyType(t *testing.T) {
	cases := map[string]string{
		"momentum":              "momentum",
		"Mean-Reversion":        "mean_reversion",
		"Statistical Arbitrage": "statistical_arbitrage",
		"  Regime-Switching  ":  "regime_switching",
		"":                      "",
	}
	for in, want := range cases {
		c := &Candidate{Tags: Tags{HypothesisType: in}}
		assert.Equal(t, want, c.StrategyType(), "input %q", in)
	}
}

func TestPrimaryDataNeverNil(t *testing.T) {
	c := &Candidate{}
	assert.NotNil(t, c.PrimaryData())
	assert.Empty(t, c.PrimaryData())

	c.DataRequirements.Primary = []string{"spy_prices"}
	assert.Equal(t, []string{"spy_prices"}, c.PrimaryData())
}

func TestHasParameters(t *testing.T) {
	c := &Candidate{}
	assert.False(t, c.HasParameters())

	c.Parameters = map[string]any{}
	assert.False(t, c.HasParameters())

	c.Parameters["lookback_days"] = 63
	assert.True(t, c.HasParameters())
}

func TestSymbolsOrDefault(t *testing.T) {
	c := &Candidate{}
	assert.Equal(t, []string{"SPY"}, c.SymbolsOrDefault())

	c.Universe.Symbols = []string{"QQQ", "IWM"}
	assert.Equal(t, []string{"QQQ", "IWM"}, c.SymbolsOrDefault())
}

func TestCandidateYAMLRoundTrip(t *testing.T) {
	src := `
id: STRAT-MOM-001
name: sector momentum
tags:
  hypothesis_type: momentum
  labels: [equities, rotation]
universe:
  type: static
  symbols: [SPY, QQQ]
entry:
  type: signal
  technical:
    - roc_63d > 0
exit:
  paths:
    - type: signal
      condition: roc_63d < 0
    - type: stop_loss
      condition: drawdown > 10%
position:
  sizing:
    method: equal_weight
parameters:
  lookback_days: 63
  rebalance: monthly
data_requirements:
  primary: [spy_prices, qqq_prices]
hypothesis:
  summary: sector leadership persists over weeks
  edge:
    why_exists: institutional flows adjust slowly
`
	var c Candidate
	require.NoError(t, yaml.Unmarshal([]byte(src), &c))

	assert.Equal(t, core.StrategyID("STRAT-MOM-001"), c.ID)
	assert.Equal(t, "momentum", c.StrategyType())
	assert.Equal(t, []string{"SPY", "QQQ"}, c.Universe.Symbols)
	require.Len(t, c.Exit.Paths, 2)
	assert.Equal(t, "stop_loss", c.Exit.Paths[1].Type)
	assert.Equal(t, 63, c.Parameters["lookback_days"])
	assert.Equal(t, "institutional flows adjust slowly", c.Hypothesis.Edge.WhyExists)

	out, err := yaml.Marshal(&c)
	require.NoError(t, err)
	var back Candidate
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, c.ID, back.ID)
	assert.Equal(t, c.Parameters["rebalance"], back.Parameters["rebalance"])
}

func TestAllStatuses(t *testing.T) {
	assert.Equal(t, []Status{
		StatusPending, StatusValidated, StatusInvalidated, StatusBlocked,
	}, AllStatuses())
}
