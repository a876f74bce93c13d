package lean

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"stratval/domain/validation"
)

var (
	startDateRe = regexp.MustCompile(`self\.(?:set_start_date|SetStartDate)\([^)]*\)`)
	endDateRe   = regexp.MustCompile(`self\.(?:set_end_date|SetEndDate)\([^)]*\)`)
	initDefRe   = regexp.MustCompile(`(?m)^(\s*)def initialize\(self\):\s*$`)
)

// RewriteDates pins the program's backtest dates to the window. Any
// existing date call is replaced; a program without date calls gets
// them inserted at the top of initialize. Rewriting an already
// rewritten program with the same window changes nothing.
func RewriteDates(source string, window validation.WindowSpec) (string, error) {
	startCall, err := dateCall("set_start_date", window.Start)
	if err != nil {
		return "", err
	}
	endCall, err := dateCall("set_end_date", window.End)
	if err != nil {
		return "", err
	}

	out := startDateRe.ReplaceAllString(source, startCall)
	out = endDateRe.ReplaceAllString(out, endCall)

	var missing []string
	if !strings.Contains(out, "set_start_date(") {
		missing = append(missing, startCall)
	}
	if !strings.Contains(out, "set_end_date(") {
		missing = append(missing, endCall)
	}
	if len(missing) == 0 {
		return out, nil
	}

	loc := initDefRe.FindStringSubmatchIndex(out)
	if loc == nil {
		return "", fmt.Errorf("program has no initialize method to place date calls in")
	}
	indent := out[loc[2]:loc[3]] + "    "

	var insert strings.Builder
	for _, call := range missing {
		insert.WriteString(indent)
		insert.WriteString(call)
		insert.WriteString("\n")
	}

	lineEnd := strings.IndexByte(out[loc[0]:], '\n')
	if lineEnd < 0 {
		return out + "\n" + insert.String(), nil
	}
	at := loc[0] + lineEnd + 1
	return out[:at] + insert.String() + out[at:], nil
}

// dateCall renders a self.set_*_date call from a YYYY-MM-DD string
// with non-padded month and day.
func dateCall(method, date string) (string, error) {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid window date %q", date)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", fmt.Errorf("invalid window date %q", date)
		}
		nums[i] = n
	}
	return fmt.Sprintf("self.%s(%d, %d, %d)", method, nums[0], nums[1], nums[2]), nil
}
