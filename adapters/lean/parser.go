package lean

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"stratval/domain/validation"
)

// engineCrashPatterns identify a crashed engine process. A crash is
// permanent for the candidate: re-running the same program crashes
// again.
var engineCrashPatterns = []string{
	"PAL_SEHException",
	"core dumped",
	"FATAL UNHANDLED EXCEPTION",
	"Aborted (core dumped)",
	"Segmentation fault",
}

// rateLimitPatterns identify transient capacity problems. The run can
// be retried later.
var rateLimitPatterns = []string{
	"no spare nodes",
	"rate limit",
	"too many requests",
	"quota exceeded",
	"throttl",
	"capacity limit",
	"maximum number of projects",
}

const runtimeErrorMarker = "An error occurred during this backtest:"

// Classification is what the combined engine output tells us before
// any statistics parsing.
type Classification int

const (
	ClassOK Classification = iota
	ClassEngineCrash
	ClassRateLimited
	ClassRuntimeError
	ClassExitFailure
)

// Classify inspects combined stdout+stderr and the exit code. Crash
// patterns outrank everything. Rate-limit patterns only count on a
// failed exit, so a successful run whose log mentions limits is not
// parked. Then the exit code, then the runtime-error marker.
func Classify(output string, exitCode int) (Classification, string) {
	for _, p := range engineCrashPatterns {
		if strings.Contains(output, p) {
			return ClassEngineCrash, fmt.Sprintf("engine crash: %s", p)
		}
	}

	if exitCode != 0 {
		lower := strings.ToLower(output)
		for _, p := range rateLimitPatterns {
			if strings.Contains(lower, p) {
				return ClassRateLimited, fmt.Sprintf("rate limited: %s", p)
			}
		}
		return ClassExitFailure, fmt.Sprintf("engine exited with code %d: %s", exitCode, outputTail(output, 500))
	}

	if idx := strings.Index(output, runtimeErrorMarker); idx >= 0 {
		msg := strings.TrimSpace(output[idx+len(runtimeErrorMarker):])
		if nl := strings.IndexByte(msg, '\n'); nl > 0 {
			// Keep a few lines of traceback context.
			msg = outputHead(msg, 800)
		}
		return ClassRuntimeError, msg
	}

	return ClassOK, ""
}

func outputTail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func outputHead(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ParsePercent leniently parses a statistic value: %, $, and thousands
// separators are stripped before parsing.
func ParsePercent(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "%", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable statistic %q", raw)
	}
	return v, nil
}

// statFields maps engine statistic names to extractors. Returns are
// reported as percentages; drawdown is reported as a positive fraction
// regardless of the engine's sign.
var statFields = []struct {
	name  string
	apply func(*validation.WindowOutcome, float64)
}{
	{"Compounding Annual Return", func(o *validation.WindowOutcome, v float64) { o.CAGR = ptr(v / 100) }},
	{"Sharpe Ratio", func(o *validation.WindowOutcome, v float64) { o.Sharpe = ptr(v) }},
	{"Drawdown", func(o *validation.WindowOutcome, v float64) { o.MaxDrawdown = ptr(math.Abs(v) / 100) }},
	{"Alpha", func(o *validation.WindowOutcome, v float64) { o.Alpha = ptr(v) }},
	{"Net Profit", func(o *validation.WindowOutcome, v float64) { o.TotalReturn = ptr(v / 100) }},
	{"Win Rate", func(o *validation.WindowOutcome, v float64) { o.WinRate = ptr(v / 100) }},
	{"Total Orders", func(o *validation.WindowOutcome, v float64) { n := int(v); o.TotalTrades = &n }},
}

func ptr(v float64) *float64 { return &v }

// statLineRe matches one statistic in the CLI's result table, which
// renders either as box-drawing cells or as plain key-value lines.
func statLineRe(name string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(name) + `[^\d\-+]*(-?[\d][\d.,]*%?)`)
}

var statRegexes = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(statFields))
	for _, f := range statFields {
		m[f.name] = statLineRe(f.name)
	}
	return m
}()

// ParseStats extracts backtest statistics from engine output into the
// outcome. Missing fields stay nil. A run that executed zero trades is
// marked failed: its statistics are meaningless.
func ParseStats(output string, outcome *validation.WindowOutcome) {
	for _, f := range statFields {
		m := statRegexes[f.name].FindStringSubmatch(output)
		if m == nil {
			continue
		}
		v, err := ParsePercent(m[1])
		if err != nil {
			continue
		}
		f.apply(outcome, v)
	}

	applyZeroTradesRule(outcome)
}

// applyZeroTradesRule fails an otherwise successful outcome when no
// trades executed.
func applyZeroTradesRule(outcome *validation.WindowOutcome) {
	if outcome.TotalTrades != nil && *outcome.TotalTrades == 0 {
		outcome.Success = false
		outcome.Error = "zero trades executed"
	}
}

// StatsFromAPI maps a statistics payload from the cloud API onto the
// outcome, applying the same field mapping and the zero-trades rule.
func StatsFromAPI(stats map[string]string, outcome *validation.WindowOutcome) {
	for _, f := range statFields {
		raw, ok := stats[f.name]
		if !ok {
			continue
		}
		v, err := ParsePercent(raw)
		if err != nil {
			continue
		}
		f.apply(outcome, v)
	}

	applyZeroTradesRule(outcome)
}
