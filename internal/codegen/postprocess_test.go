package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostProcessRenamesOldAPI(t *testing.T) {
	src := `from AlgorithmImports import *

class TestAlgorithm(QCAlgorithm):
    def Initialize(self):
        self.SetCash(100000)
        self.spy = self.AddEquity("SPY", Resolution.Daily)
        self.rsi = self.RSI(self.spy.Symbol, 14)
        self.SetHoldings(self.spy.Symbol, 1.0)

    def OnData(self, data):
        if not self.rsi.IsReady:
            return
        value = self.rsi.Current.Value
`
	out := PostProcess(src)

	assert.Contains(t, out, "def initialize(self):")
	assert.Contains(t, out, "def on_data(self, data):")
	assert.Contains(t, out, "self.set_cash(100000)")
	assert.Contains(t, out, `self.add_equity("SPY", Resolution.DAILY)`)
	assert.Contains(t, out, "self.rsi(")
	assert.Contains(t, out, ".symbol")
	assert.Contains(t, out, ".is_ready")
	assert.Contains(t, out, ".current.value")
	assert.NotContains(t, out, "Resolution.Daily")
	assert.NotContains(t, out, "SetCash")
}

func TestPostProcessPrependsImport(t *testing.T) {
	src := "class FooAlgorithm(QCAlgorithm):\n    def initialize(self):\n        self.set_cash(100000)\n"
	out := PostProcess(src)
	require.True(t, strings.HasPrefix(out, "from AlgorithmImports import *"))

	// An existing import is not duplicated.
	again := PostProcess(out)
	assert.Equal(t, 1, strings.Count(again, "from AlgorithmImports import *"))
}

func TestPostProcessOptionFilterKeepsPascalCase(t *testing.T) {
	src := `from AlgorithmImports import *

class OptAlgorithm(QCAlgorithm):
    def initialize(self):
        self.set_cash(100000)
        self.set_benchmark("SPY")
        equity = self.add_equity("SPY", Resolution.MINUTE)
        equity.set_data_normalization_mode(DataNormalizationMode.RAW)
        option = self.add_option("SPY", Resolution.MINUTE)
        option.set_filter(lambda u: u.include_weeklys().strikes(-5, 5).expiration(20, 45))
`
	out := PostProcess(src)
	assert.Contains(t, out, ".IncludeWeeklys()")
	assert.Contains(t, out, ".Strikes(-5, 5)")
	assert.Contains(t, out, ".Expiration(20, 45)")
	assert.NotContains(t, out, ".include_weeklys(")
}

func TestPostProcessInsertsRawNormalizationForOptions(t *testing.T) {
	src := `from AlgorithmImports import *

class OptAlgorithm(QCAlgorithm):
    def initialize(self):
        self.set_cash(100000)
        self.equity = self.add_equity("QQQ", Resolution.MINUTE)
        option = self.add_option("QQQ", Resolution.MINUTE)
`
	out := PostProcess(src)
	assert.Contains(t, out,
		`self.securities["QQQ"].set_data_normalization_mode(DataNormalizationMode.RAW)`)

	// Equity-only programs are left alone.
	equityOnly := `from AlgorithmImports import *

class EqAlgorithm(QCAlgorithm):
    def initialize(self):
        self.set_cash(100000)
        self.set_benchmark("SPY")
        self.equity = self.add_equity("QQQ", Resolution.DAILY)
`
	assert.NotContains(t, PostProcess(equityOnly), "DataNormalizationMode.RAW")
}

func TestPostProcessInjectsBenchmark(t *testing.T) {
	src := `from AlgorithmImports import *

class FooAlgorithm(QCAlgorithm):
    def initialize(self):
        self.set_cash(100000)
        self.equity = self.add_equity("SPY", Resolution.DAILY)
`
	out := PostProcess(src)
	assert.Equal(t, 1, strings.Count(out, `self.set_benchmark("SPY")`))

	// set_cash comes first, benchmark right after.
	cashIdx := strings.Index(out, "set_cash")
	benchIdx := strings.Index(out, "set_benchmark")
	assert.Less(t, cashIdx, benchIdx)
}

func TestPostProcessIsIdempotent(t *testing.T) {
	sources := []string{
		"class A(QCAlgorithm):\n    def Initialize(self):\n        self.SetCash(100000)\n        self.AddEquity(\"SPY\", Resolution.Daily)\n",
		momentumTemplate,
		optionsIncomeTemplate,
		"",
		"not code at all",
	}
	for _, src := range sources {
		once := PostProcess(src)
		twice := PostProcess(once)
		assert.Equal(t, once, twice)
	}
}
