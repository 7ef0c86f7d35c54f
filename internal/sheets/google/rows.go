package google

import (
	"sort"
	"time"

	"cariya/internal/core"
)

var fixedHeader = []any{"User ID", "First name", "Surname", "Total savings", "User savings", "Donor contributions"}

// donorRows lays the donor view out as a sheet: a title row, a header, one
// row per user with two columns per month (savings, donor match) and a
// totals row. Amounts are written in currency units.
func donorRows(monthKey string, view core.DonorView, generated time.Time) [][]any {
	months := monthColumns(view)

	header := append([]any(nil), fixedHeader...)
	for _, m := range months {
		header = append(header, m+" savings", m+" donor")
	}

	rows := make([][]any, 0, len(view.Rows)+3)
	rows = append(rows, []any{"Donor view", monthKey, generated.UTC().Format(time.RFC3339)})
	rows = append(rows, header)

	for _, r := range view.Rows {
		byMonth := make(map[string]core.MonthlyFigures, len(r.Monthly))
		for _, f := range r.Monthly {
			byMonth[f.MonthKey] = f
		}
		row := []any{r.UserID, r.FirstName, r.Surname, r.TotalSavings.Float(), r.TotalUserSavings.Float(), r.TotalDonorContributions.Float()}
		for _, m := range months {
			f := byMonth[m]
			row = append(row, f.UserSavings.Float(), f.DonorContribution.Float())
		}
		rows = append(rows, row)
	}

	totals := []any{"TOTAL", "", "", "", view.TotalUserSavings.Float(), view.TotalDonorContributions.Float()}
	rows = append(rows, totals)
	return rows
}

func monthColumns(view core.DonorView) []string {
	seen := map[string]struct{}{}
	var months []string
	for _, r := range view.Rows {
		for _, f := range r.Monthly {
			if _, ok := seen[f.MonthKey]; ok {
				continue
			}
			seen[f.MonthKey] = struct{}{}
			months = append(months, f.MonthKey)
		}
	}
	sort.Strings(months)
	return months
}
