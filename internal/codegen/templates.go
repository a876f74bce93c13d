package codegen

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"stratval/domain/core"
	"stratval/domain/strategy"
)

// templateSelection maps a normalized hypothesis type to a template
// name. Types not listed here fall through to the base template.
var templateSelection = map[string]string{
	"momentum":              "momentum",
	"momentum_rotation":     "momentum",
	"relative_momentum":     "momentum",
	"absolute_momentum":     "momentum",
	"dual_momentum":         "momentum",
	"mean_reversion":        "mean_reversion",
	"zscore":                "mean_reversion",
	"statistical_arbitrage": "mean_reversion",
	"regime_adaptive":       "regime_adaptive",
	"regime_switching":      "regime_adaptive",
	"tactical_allocation":   "regime_adaptive",
	"options_income":        "options_income",
	"cash_secured_put":      "options_income",
	"put_credit_spread":     "options_income",
	"covered_call":          "options_income",
	"options":               "options_income",
}

// SelectTemplate picks the template for a candidate. A template render
// needs parameters to fill in, so a candidate without any gets no
// template and falls through to the model-backed path.
func SelectTemplate(cand *strategy.Candidate) (string, bool) {
	if !cand.HasParameters() {
		return "", false
	}
	name, ok := templateSelection[cand.StrategyType()]
	if !ok {
		name = "base"
	}
	return name, true
}

var idSegmentRe = regexp.MustCompile(`[^A-Za-z0-9]+`)

// ClassName derives the algorithm class name from a strategy ID:
// each hyphen-separated segment is title-cased and the segments are
// concatenated with an Algorithm suffix.
func ClassName(id core.StrategyID) string {
	var b strings.Builder
	for _, seg := range idSegmentRe.Split(string(id), -1) {
		if seg == "" {
			continue
		}
		b.WriteString(strings.ToUpper(seg[:1]))
		b.WriteString(strings.ToLower(seg[1:]))
	}
	b.WriteString("Algorithm")
	return b.String()
}

type templateData struct {
	ClassName     string
	PrimarySymbol string
	SymbolList    string
	ParamsDict    string
}

// Render produces the algorithm source for the named template. The
// output is post-processed like every other generated program.
func Render(name string, cand *strategy.Candidate) (string, error) {
	tmpl, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}

	symbols := cand.SymbolsOrDefault()
	data := templateData{
		ClassName:     ClassName(cand.ID),
		PrimarySymbol: symbols[0],
		SymbolList:    pythonStringList(symbols),
		ParamsDict:    pythonDict(cand.Parameters),
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return PostProcess(b.String()), nil
}

func pythonStringList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// pythonDict renders parameters as a Python dict literal with sorted
// keys so renders are deterministic.
func pythonDict(params map[string]any) string {
	if len(params) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%q: %s", k, pythonValue(params[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func pythonValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case string:
		return fmt.Sprintf("%q", x)
	case int:
		return fmt.Sprintf("%d", x)
	case int64:
		return fmt.Sprintf("%d", x)
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = pythonValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%q", fmt.Sprint(v))
	}
}

var templates = map[string]*template.Template{
	"momentum":        template.Must(template.New("momentum").Parse(momentumTemplate)),
	"mean_reversion":  template.Must(template.New("mean_reversion").Parse(meanReversionTemplate)),
	"regime_adaptive": template.Must(template.New("regime_adaptive").Parse(regimeAdaptiveTemplate)),
	"options_income":  template.Must(template.New("options_income").Parse(optionsIncomeTemplate)),
	"base":            template.Must(template.New("base").Parse(baseTemplate)),
}

const momentumTemplate = `from AlgorithmImports import *


class {{.ClassName}}(QCAlgorithm):
    """Cross-sectional momentum rotation over a fixed symbol list."""

    def initialize(self):
        self.set_cash(100000)
        self.set_benchmark("SPY")
        self.params = {{.ParamsDict}}

        self.tickers = {{.SymbolList}}
        self.symbols = []
        for ticker in self.tickers:
            equity = self.add_equity(ticker, Resolution.DAILY)
            self.symbols.append(equity.symbol)

        self.lookback = int(self.params.get("lookback", 126))
        self.hold_count = int(self.params.get("hold_count", max(1, len(self.symbols) // 2)))

        self.momentum = {}
        for symbol in self.symbols:
            self.momentum[symbol] = self.rocp(symbol, self.lookback, Resolution.DAILY)

        self.schedule.on(
            self.date_rules.month_start(self.symbols[0]),
            self.time_rules.after_market_open(self.symbols[0], 30),
            self.rebalance,
        )

    def rebalance(self):
        ready = [s for s in self.symbols if self.momentum[s].is_ready]
        if not ready:
            return

        ranked = sorted(ready, key=lambda s: self.momentum[s].current.value, reverse=True)
        winners = [s for s in ranked[: self.hold_count] if self.momentum[s].current.value > 0]

        for symbol in self.symbols:
            if symbol not in winners and self.portfolio[symbol].invested:
                self.liquidate(symbol)

        if not winners:
            return
        weight = 1.0 / len(winners)
        for symbol in winners:
            self.set_holdings(symbol, weight)

    def on_data(self, data):
        pass
`

const meanReversionTemplate = `from AlgorithmImports import *


class {{.ClassName}}(QCAlgorithm):
    """Z-score mean reversion on a single instrument."""

    def initialize(self):
        self.set_cash(100000)
        self.set_benchmark("SPY")
        self.params = {{.ParamsDict}}

        self.equity = self.add_equity("{{.PrimarySymbol}}", Resolution.DAILY)
        self.symbol = self.equity.symbol

        self.lookback = int(self.params.get("lookback", 20))
        self.entry_z = float(self.params.get("entry_z", 2.0))
        self.exit_z = float(self.params.get("exit_z", 0.5))

        self.window = RollingWindow[float](self.lookback)
        self.set_warm_up(self.lookback, Resolution.DAILY)

    def calculate_zscore(self):
        if self.window.count < self.lookback:
            return None
        values = [self.window[i] for i in range(self.window.count)]
        mean = sum(values) / len(values)
        variance = sum((v - mean) ** 2 for v in values) / len(values)
        std = variance ** 0.5
        if std == 0:
            return None
        return (values[0] - mean) / std

    def on_data(self, data):
        if self.symbol not in data.bars:
            return
        self.window.add(data.bars[self.symbol].close)
        if self.is_warming_up:
            return

        zscore = self.calculate_zscore()
        if zscore is None:
            return

        invested = self.portfolio[self.symbol].invested
        if not invested and zscore < -self.entry_z:
            self.set_holdings(self.symbol, 1.0)
        elif invested and zscore > -self.exit_z:
            self.liquidate(self.symbol)
`

const regimeAdaptiveTemplate = `from AlgorithmImports import *


class {{.ClassName}}(QCAlgorithm):
    """Trend-regime switch between a risk asset and a defensive asset."""

    def initialize(self):
        self.set_cash(100000)
        self.set_benchmark("SPY")
        self.params = {{.ParamsDict}}

        risk_ticker = "{{.PrimarySymbol}}"
        defensive_ticker = str(self.params.get("defensive", "IEF"))

        self.risk = self.add_equity(risk_ticker, Resolution.DAILY).symbol
        self.defensive = self.add_equity(defensive_ticker, Resolution.DAILY).symbol

        self.trend_days = int(self.params.get("trend_days", 200))
        self.trend = self.sma(self.risk, self.trend_days, Resolution.DAILY)

        self.schedule.on(
            self.date_rules.week_start(self.risk),
            self.time_rules.after_market_open(self.risk, 30),
            self.rebalance,
        )

    def rebalance(self):
        if not self.trend.is_ready:
            return

        price = self.securities[self.risk].price
        if price > self.trend.current.value:
            if not self.portfolio[self.risk].invested:
                self.liquidate(self.defensive)
                self.set_holdings(self.risk, 1.0)
        else:
            if not self.portfolio[self.defensive].invested:
                self.liquidate(self.risk)
                self.set_holdings(self.defensive, 1.0)

    def on_data(self, data):
        pass
`

const optionsIncomeTemplate = `from AlgorithmImports import *


class {{.ClassName}}(QCAlgorithm):
    """Options income on an equity underlying.

    Supports cash-secured puts, put credit spreads, and covered calls,
    selected by the strategy_variant parameter.
    """

    def initialize(self):
        self.set_cash(100000)
        self.set_benchmark("SPY")
        self.params = {{.ParamsDict}}

        self.equity = self.add_equity("{{.PrimarySymbol}}", Resolution.MINUTE)
        self.equity.set_data_normalization_mode(DataNormalizationMode.RAW)
        self.underlying = self.equity.symbol

        option = self.add_option("{{.PrimarySymbol}}", Resolution.MINUTE)
        option.set_filter(lambda u: u.IncludeWeeklys().Strikes(-10, 10).Expiration(20, 45))
        self.option_symbol = option.symbol

        self.variant = str(self.params.get("strategy_variant", "cash_secured_put"))
        self.target_delta = float(self.params.get("target_delta", 0.3))
        self.min_dte = int(self.params.get("min_dte", 20))
        self.max_dte = int(self.params.get("max_dte", 45))

        self.schedule.on(
            self.date_rules.week_start(self.underlying),
            self.time_rules.after_market_open(self.underlying, 60),
            self.trade,
        )

    def trade(self):
        if self.has_open_option_position():
            return

        chain = self.option_chain(self.option_symbol)
        if chain is None:
            return
        contracts = [c for c in chain if self.min_dte <= (c.expiry - self.time).days <= self.max_dte]
        if not contracts:
            return

        if self.variant == "put_credit_spread":
            self._open_put_credit_spread(contracts)
        elif self.variant == "covered_call":
            self._open_covered_call(contracts)
        else:
            self._open_cash_secured_put(contracts)

    def has_open_option_position(self):
        for holding in self.portfolio.values():
            if holding.invested and holding.type == SecurityType.OPTION:
                return True
        return False

    def _select_put(self, contracts):
        puts = [c for c in contracts if c.right == OptionRight.PUT]
        puts = [c for c in puts if c.strike < self.securities[self.underlying].price]
        if not puts:
            return None
        return sorted(puts, key=lambda c: c.strike, reverse=True)[0]

    def _open_cash_secured_put(self, contracts):
        put = self._select_put(contracts)
        if put is None:
            return
        self.market_order(put.symbol, -1)

    def _open_put_credit_spread(self, contracts):
        short_put = self._select_put(contracts)
        if short_put is None:
            return
        wing_width = float(self.params.get("wing_width", 5.0))
        wings = [
            c for c in contracts
            if c.right == OptionRight.PUT
            and c.expiry == short_put.expiry
            and c.strike <= short_put.strike - wing_width
        ]
        if not wings:
            return
        long_put = sorted(wings, key=lambda c: c.strike, reverse=True)[0]
        self.market_order(short_put.symbol, -1)
        self.market_order(long_put.symbol, 1)

    def _open_covered_call(self, contracts):
        if not self.portfolio[self.underlying].invested:
            self.market_order(self.underlying, 100)
        calls = [
            c for c in contracts
            if c.right == OptionRight.CALL
            and c.strike > self.securities[self.underlying].price
        ]
        if not calls:
            return
        call = sorted(calls, key=lambda c: c.strike)[0]
        self.market_order(call.symbol, -1)

    def on_data(self, data):
        pass
`

const baseTemplate = `from AlgorithmImports import *


class {{.ClassName}}(QCAlgorithm):
    """Equal-weight buy and hold over the candidate's universe."""

    def initialize(self):
        self.set_cash(100000)
        self.set_benchmark("SPY")
        self.params = {{.ParamsDict}}

        self.tickers = {{.SymbolList}}
        self.symbols = []
        for ticker in self.tickers:
            equity = self.add_equity(ticker, Resolution.DAILY)
            self.symbols.append(equity.symbol)
        self.rebalanced = False

    def on_data(self, data):
        if self.rebalanced:
            return
        weight = 1.0 / len(self.symbols)
        for symbol in self.symbols:
            self.set_holdings(symbol, weight)
        self.rebalanced = True
`
