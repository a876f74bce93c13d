package codegen

import (
	"fmt"
	"regexp"
	"strings"
)

// apiRenames maps old-style engine API spellings to the current Python
// API. Every target is a fixed point of the table, so applying the
// whole pass twice yields the same text.
var apiRenames = [][2]string{
	{"SetStartDate(", "set_start_date("},
	{"SetEndDate(", "set_end_date("},
	{"SetCash(", "set_cash("},
	{"SetBenchmark(", "set_benchmark("},
	{"SetWarmUp(", "set_warm_up("},
	{"SetHoldings(", "set_holdings("},
	{"AddEquity(", "add_equity("},
	{"AddOption(", "add_option("},
	{"Liquidate(", "liquidate("},
	{"SetFilter(", "set_filter("},
	{"OptionChain(", "option_chain("},
	{"MarketOrder(", "market_order("},
	{"self.RSI(", "self.rsi("},
	{"self.SMA(", "self.sma("},
	{"self.EMA(", "self.ema("},
	{"def Initialize(", "def initialize("},
	{"def OnData(", "def on_data("},
	{".Symbol", ".symbol"},
	{".IsReady", ".is_ready"},
	{".Current.Value", ".current.value"},
	{".Portfolio", ".portfolio"},
	{".Securities", ".securities"},
	{"Resolution.Daily", "Resolution.DAILY"},
	{"Resolution.Hour", "Resolution.HOUR"},
	{"Resolution.Minute", "Resolution.MINUTE"},
	{"DataNormalizationMode.Raw", "DataNormalizationMode.RAW"},
	{"DataNormalizationMode.Adjusted", "DataNormalizationMode.ADJUSTED"},
}

// optionFilterRenames go the other way: the option-filter builder kept
// its PascalCase methods in the current API, and models tend to guess
// snake_case for them.
var optionFilterRenames = [][2]string{
	{".include_weeklys(", ".IncludeWeeklys("},
	{".strikes(", ".Strikes("},
	{".expiration(", ".Expiration("},
}

const importLine = "from AlgorithmImports import *"

var (
	addEquityLineRe = regexp.MustCompile(`(?m)^(\s*)(?:(?:self\.)?\w+\s*=\s*)?self\.add_equity\(\s*["']([A-Za-z./]+)["']`)
	setCashLineRe   = regexp.MustCompile(`(?m)^(\s*)self\.set_cash\([^\n]*$`)
	optionsAPIRe    = regexp.MustCompile(`add_option\(|option_chain\(`)
)

// PostProcess normalizes generated source for the engine's current
// Python API. The function is idempotent: PostProcess(PostProcess(s))
// equals PostProcess(s).
func PostProcess(source string) string {
	out := source

	if !strings.Contains(out, importLine) {
		out = importLine + "\n\n" + out
	}

	for _, r := range apiRenames {
		out = strings.ReplaceAll(out, r[0], r[1])
	}
	for _, r := range optionFilterRenames {
		out = strings.ReplaceAll(out, r[0], r[1])
	}

	out = ensureRawNormalization(out)
	out = ensureBenchmark(out)

	return out
}

// ensureRawNormalization inserts a raw data-normalization line after
// the first add_equity call when the program uses options APIs.
// Options pricing needs unadjusted underlying prices.
func ensureRawNormalization(source string) string {
	if !optionsAPIRe.MatchString(source) {
		return source
	}
	if strings.Contains(source, "DataNormalizationMode.RAW") {
		return source
	}

	loc := addEquityLineRe.FindStringSubmatchIndex(source)
	if loc == nil {
		return source
	}
	m := addEquityLineRe.FindStringSubmatch(source)
	indent := m[1]
	symbol := m[2]

	lineEnd := strings.Index(source[loc[0]:], "\n")
	if lineEnd < 0 {
		return source
	}
	insertAt := loc[0] + lineEnd + 1
	line := fmt.Sprintf("%sself.securities[\"%s\"].set_data_normalization_mode(DataNormalizationMode.RAW)\n", indent, symbol)
	return source[:insertAt] + line + source[insertAt:]
}

// ensureBenchmark injects a SPY benchmark after set_cash when the
// program sets none.
func ensureBenchmark(source string) string {
	if strings.Contains(source, "set_benchmark(") {
		return source
	}

	loc := setCashLineRe.FindStringSubmatchIndex(source)
	if loc == nil {
		return source
	}
	m := setCashLineRe.FindStringSubmatch(source)
	indent := m[1]

	lineEnd := strings.Index(source[loc[0]:], "\n")
	insertAt := len(source)
	suffix := ""
	if lineEnd >= 0 {
		insertAt = loc[0] + lineEnd + 1
	} else {
		suffix = "\n"
	}
	line := suffix + indent + "self.set_benchmark(\"SPY\")\n"
	return source[:insertAt] + line + source[insertAt:]
}
