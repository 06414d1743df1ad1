// Package summary aggregates grid rows and time entries for display. All
// functions are pure.
package summary

import (
	"sort"

	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/timecalc"
)

// DailyTotals sums the cells of rows per date, in minutes. Cells that are not
// valid HH:MM (still being typed) count after normalization.
func DailyTotals(rows []model.GridRow) map[string]int {
	out := make(map[string]int)
	for _, r := range rows {
		for date, cell := range r.WeekEntries {
			if cell.Duration == "" {
				continue
			}
			out[date] += cellMinutes(cell.Duration)
		}
	}
	return out
}

func cellMinutes(v string) int {
	if n, ok := timecalc.ParseHHMM(v); ok {
		return n
	}
	return timecalc.DurationMinutes(v)
}

// WeekTotal sums every cell of rows, in minutes.
func WeekTotal(rows []model.GridRow) int {
	total := 0
	for _, m := range DailyTotals(rows) {
		total += m
	}
	return total
}

// RowTotal sums the cells of one row, in minutes.
func RowTotal(r model.GridRow) int {
	return WeekTotal([]model.GridRow{r})
}

// EntryDailyTotals sums entry durations per date.
func EntryDailyTotals(entries []model.TimeEntry) map[string]int {
	out := make(map[string]int)
	for _, e := range entries {
		out[e.Date] += e.DurationMinutes
	}
	return out
}

// Total sums entry durations.
func Total(entries []model.TimeEntry) int {
	total := 0
	for _, e := range entries {
		total += e.DurationMinutes
	}
	return total
}

// ProjectTotal is the time booked on one project.
type ProjectTotal struct {
	ProjectID string `json:"projectId" yaml:"projectId"`
	Minutes   int    `json:"minutes" yaml:"minutes"`
}

// ByProject aggregates entries per project, sorted by project ID.
func ByProject(entries []model.TimeEntry) []ProjectTotal {
	totals := map[string]int{}
	var order []string
	for _, e := range entries {
		if _, seen := totals[e.ProjectID]; !seen {
			order = append(order, e.ProjectID)
		}
		totals[e.ProjectID] += e.DurationMinutes
	}
	sort.Strings(order)

	out := make([]ProjectTotal, 0, len(order))
	for _, p := range order {
		out = append(out, ProjectTotal{ProjectID: p, Minutes: totals[p]})
	}
	return out
}

// Distribution is a labor-distribution bucket.
type Distribution struct {
	Department string `json:"department" yaml:"department"`
	Account    string `json:"account" yaml:"account"`
	Paycode    string `json:"paycode" yaml:"paycode"`
	Minutes    int    `json:"minutes" yaml:"minutes"`
}

// ByDistribution aggregates entries per (department, account, paycode),
// sorted by those three keys.
func ByDistribution(entries []model.TimeEntry) []Distribution {
	type key struct{ dept, account, code string }
	totals := map[key]int{}
	for _, e := range entries {
		totals[key{e.Department, e.Account, e.Paycode}] += e.DurationMinutes
	}

	out := make([]Distribution, 0, len(totals))
	for k, m := range totals {
		out = append(out, Distribution{Department: k.dept, Account: k.account, Paycode: k.code, Minutes: m})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Department != b.Department {
			return a.Department < b.Department
		}
		if a.Account != b.Account {
			return a.Account < b.Account
		}
		return a.Paycode < b.Paycode
	})
	return out
}

// AverageHoursPerDay returns totalMinutes spread over days, in hours.
func AverageHoursPerDay(totalMinutes, days int) float64 {
	if days <= 0 {
		return 0
	}
	return float64(totalMinutes) / 60 / float64(days)
}

// PercentOfTarget returns minutes as a percentage of targetMinutes.
func PercentOfTarget(minutes, targetMinutes int) float64 {
	if targetMinutes <= 0 {
		return 0
	}
	return float64(minutes) * 100 / float64(targetMinutes)
}

// WorkedDays counts the dates with a positive total.
func WorkedDays(daily map[string]int) int {
	n := 0
	for _, m := range daily {
		if m > 0 {
			n++
		}
	}
	return n
}
