package verify

import (
	"fmt"
	"strings"

	"stratval/domain/strategy"
	"stratval/domain/validation"
)

// lookAheadKeywords suggest the candidate peeks at future data.
var lookAheadKeywords = []string{
	"tomorrow", "next_day", "future", "will_be", "forward",
	"t+1", "t+2", "next_bar", "next_close", "tomorrow_open",
}

// survivorshipKeywords suggest the universe is defined by today's
// index membership rather than point-in-time membership.
var survivorshipKeywords = []string{
	"sp500", "s&p500", "index_constituents", "current_members",
	"top_", "largest_", "market_cap_rank",
}

// Verifier runs structural checks over a candidate before any backtest
// is spent on it.
type Verifier struct{}

func New() *Verifier {
	return &Verifier{}
}

// Verify runs all checks. The overall status is the worst individual
// status: fail beats warn beats pass.
func (v *Verifier) Verify(cand *strategy.Candidate) *validation.VerifyReport {
	report := &validation.VerifyReport{
		StrategyID: cand.ID,
		Overall:    validation.VerifyPass,
	}

	checks := []validation.VerifyCheck{
		v.checkEntryDefined(cand),
		v.checkExitDefined(cand),
		v.checkUniverseDefined(cand),
		v.checkLookAheadBias(cand),
		v.checkSurvivorshipBias(cand),
		v.checkPositionSizing(cand),
		v.checkDataRequirements(cand),
	}

	for _, c := range checks {
		report.Checks = append(report.Checks, c)
		if worse(c.Status, report.Overall) {
			report.Overall = c.Status
		}
	}
	return report
}

func worse(a, b validation.VerifyStatus) bool {
	return severity(a) > severity(b)
}

func severity(s validation.VerifyStatus) int {
	switch s {
	case validation.VerifyFail:
		return 2
	case validation.VerifyWarn:
		return 1
	default:
		return 0
	}
}

func (v *Verifier) checkEntryDefined(cand *strategy.Candidate) validation.VerifyCheck {
	c := validation.VerifyCheck{Name: "entry_defined", Status: validation.VerifyPass}
	if cand.Entry.Type == "" && len(cand.Entry.Signals) == 0 &&
		len(cand.Entry.Technical) == 0 && len(cand.Entry.Fundamental) == 0 {
		c.Status = validation.VerifyFail
		c.Message = "no entry rule defined"
	}
	return c
}

func (v *Verifier) checkExitDefined(cand *strategy.Candidate) validation.VerifyCheck {
	c := validation.VerifyCheck{Name: "exit_defined", Status: validation.VerifyPass}
	if len(cand.Exit.Paths) == 0 {
		c.Status = validation.VerifyFail
		c.Message = "no exit path defined"
		return c
	}
	hasStop := false
	for _, p := range cand.Exit.Paths {
		t := strings.ToLower(p.Type)
		if strings.Contains(t, "stop") {
			hasStop = true
		}
	}
	if !hasStop {
		c.Status = validation.VerifyWarn
		c.Message = "no stop-loss exit path"
	}
	return c
}

func (v *Verifier) checkUniverseDefined(cand *strategy.Candidate) validation.VerifyCheck {
	c := validation.VerifyCheck{Name: "universe_defined", Status: validation.VerifyPass}
	if cand.Universe.Type == "" && len(cand.Universe.Symbols) == 0 {
		c.Status = validation.VerifyFail
		c.Message = "no trading universe defined"
		return c
	}
	if strings.EqualFold(cand.Universe.Type, "static") && len(cand.Universe.Symbols) == 0 {
		c.Status = validation.VerifyWarn
		c.Message = "static universe with no symbols defined"
	}
	return c
}

func (v *Verifier) checkLookAheadBias(cand *strategy.Candidate) validation.VerifyCheck {
	c := validation.VerifyCheck{Name: "look_ahead_bias", Status: validation.VerifyPass}
	text := ruleText(cand)
	for _, kw := range lookAheadKeywords {
		if strings.Contains(text, kw) {
			c.Status = validation.VerifyWarn
			c.Message = fmt.Sprintf("rule text references %q", kw)
			return c
		}
	}
	return c
}

func (v *Verifier) checkSurvivorshipBias(cand *strategy.Candidate) validation.VerifyCheck {
	c := validation.VerifyCheck{Name: "survivorship_bias", Status: validation.VerifyPass}
	text := strings.ToLower(strings.Join(cand.Universe.Filters, " ") + " " + cand.Universe.Type)
	for _, kw := range survivorshipKeywords {
		if strings.Contains(text, kw) {
			c.Status = validation.VerifyWarn
			c.Message = fmt.Sprintf("universe references %q, check point-in-time membership", kw)
			return c
		}
	}
	return c
}

func (v *Verifier) checkPositionSizing(cand *strategy.Candidate) validation.VerifyCheck {
	c := validation.VerifyCheck{Name: "position_sizing", Status: validation.VerifyPass}
	if cand.Position.Sizing.Method == "" {
		c.Status = validation.VerifyWarn
		c.Message = "no position sizing method"
	}
	return c
}

func (v *Verifier) checkDataRequirements(cand *strategy.Candidate) validation.VerifyCheck {
	c := validation.VerifyCheck{Name: "data_requirements", Status: validation.VerifyPass}
	if len(cand.DataRequirements.Primary) == 0 {
		c.Status = validation.VerifyWarn
		c.Message = "no primary data requirements listed"
	}
	return c
}

// ruleText flattens entry and exit descriptions for keyword scans.
func ruleText(cand *strategy.Candidate) string {
	parts := []string{cand.Entry.Type}
	parts = append(parts, cand.Entry.Signals...)
	parts = append(parts, cand.Entry.Technical...)
	parts = append(parts, cand.Entry.Fundamental...)
	for _, p := range cand.Exit.Paths {
		parts = append(parts, p.Type, p.Condition)
	}
	return strings.ToLower(strings.Join(parts, " "))
}
