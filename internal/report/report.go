package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"stratval/domain/validation"
	"stratval/internal/errors"
)

// Summary is one strategy's row in the validation report.
type Summary struct {
	ID            string
	Name          string
	Status        string
	Determination validation.Determination
	Reason        string
	Sharpe        *float64
	CAGR          *float64
	WorstDrawdown *float64
	Consistency   *float64
	TotalTrades   int
	WindowsPassed int
	WindowsRun    int
}

// FromWalkForward builds a summary row from a run's walk-forward
// result.
func FromWalkForward(id, name, status string, wf *validation.WalkForward, outcome validation.Determination, reason string) Summary {
	s := Summary{
		ID:            id,
		Name:          name,
		Status:        status,
		Determination: outcome,
		Reason:        reason,
	}
	if wf != nil && wf.Aggregate != nil {
		agg := wf.Aggregate
		s.Sharpe = agg.Sharpe
		s.CAGR = agg.CAGR
		s.WorstDrawdown = agg.WorstDrawdown
		s.Consistency = agg.Consistency
		s.TotalTrades = agg.TotalTrades
		s.WindowsPassed = agg.WindowsPassed
		s.WindowsRun = agg.WindowsRun
	}
	return s
}

// sortSummaries orders validated first, then by Sharpe descending.
func sortSummaries(rows []Summary) {
	order := map[validation.Determination]int{
		validation.DeterminationValidated:   0,
		validation.DeterminationConditional: 1,
		validation.DeterminationPending:     2,
		validation.DeterminationRetryLater:  3,
		validation.DeterminationInvalidated: 4,
		validation.DeterminationBlocked:     5,
		validation.DeterminationFailed:      6,
	}
	sort.SliceStable(rows, func(i, j int) bool {
		oi, oj := order[rows[i].Determination], order[rows[j].Determination]
		if oi != oj {
			return oi < oj
		}
		return deref(rows[i].Sharpe) > deref(rows[j].Sharpe)
	})
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func fmtStat(v *float64, pct bool) string {
	if v == nil {
		return "-"
	}
	if pct {
		return fmt.Sprintf("%.1f%%", *v*100)
	}
	return fmt.Sprintf("%.2f", *v)
}

// Markdown renders the report as a markdown document.
func Markdown(rows []Summary) string {
	sortSummaries(rows)

	var b strings.Builder
	b.WriteString("# Validation Report\n\n")
	b.WriteString(fmt.Sprintf("%d strategies\n\n", len(rows)))
	b.WriteString("| Strategy | Determination | Sharpe | CAGR | Max DD | Consistency | Trades | Windows |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|\n")
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %d | %d/%d |\n",
			r.ID, r.Determination,
			fmtStat(r.Sharpe, false), fmtStat(r.CAGR, true),
			fmtStat(r.WorstDrawdown, true), fmtStat(r.Consistency, true),
			r.TotalTrades, r.WindowsPassed, r.WindowsRun))
	}

	b.WriteString("\n## Notes\n\n")
	for _, r := range rows {
		if r.Reason == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("- **%s**: %s\n", r.ID, r.Reason))
	}
	return b.String()
}

var workbookHeaders = []string{
	"Strategy", "Name", "Status", "Determination", "Reason",
	"Sharpe", "CAGR", "Max Drawdown", "Consistency",
	"Total Trades", "Windows Passed", "Windows Run",
}

// sheetFor groups determinations into workbook sheets the way the
// status buckets group candidates.
func sheetFor(d validation.Determination) string {
	switch d {
	case validation.DeterminationValidated, validation.DeterminationConditional:
		return "Validated"
	case validation.DeterminationInvalidated:
		return "Invalidated"
	case validation.DeterminationBlocked, validation.DeterminationFailed:
		return "Blocked"
	default:
		return "Pending"
	}
}

// WriteWorkbook writes the report as an Excel workbook, one sheet per
// determination bucket.
func WriteWorkbook(path string, rows []Summary) error {
	sortSummaries(rows)

	f := excelize.NewFile()
	defer f.Close()

	nextRow := map[string]int{}
	for _, r := range rows {
		sheet := sheetFor(r.Determination)
		if nextRow[sheet] == 0 {
			if len(nextRow) == 0 {
				f.SetSheetName("Sheet1", sheet)
			} else {
				f.NewSheet(sheet)
			}
			for col, h := range workbookHeaders {
				cell, _ := excelize.CoordinatesToCellName(col+1, 1)
				f.SetCellValue(sheet, cell, h)
			}
			nextRow[sheet] = 2
		}

		values := []any{
			r.ID, r.Name, r.Status, string(r.Determination), r.Reason,
			cellStat(r.Sharpe), cellStat(r.CAGR), cellStat(r.WorstDrawdown),
			cellStat(r.Consistency), r.TotalTrades, r.WindowsPassed, r.WindowsRun,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, nextRow[sheet])
			f.SetCellValue(sheet, cell, v)
		}
		nextRow[sheet]++
	}

	if len(rows) == 0 {
		f.SetSheetName("Sheet1", "Validated")
	}

	if err := f.SaveAs(path); err != nil {
		return errors.Wrap(err, "failed to write report workbook")
	}
	return nil
}

func cellStat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
