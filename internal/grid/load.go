package grid

import (
	"sort"

	"github.com/google/uuid"

	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/timecalc"
)

type groupKey struct {
	project     string
	description string
}

// groupRows turns the remote entries of one week into grid rows, one per
// (projectId, description), a blank description grouping with
// model.DefaultDescription. Only dates in visible get a cell. When a group
// has more than one entry on a date the first one wins and the rest are
// returned as duplicates.
func groupRows(entries []model.TimeEntry, visible map[string]bool) ([]model.GridRow, []model.TimeEntry) {
	sorted := make([]model.TimeEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date < sorted[j].Date
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var (
		order      []groupKey
		rows       = make(map[groupKey]*model.GridRow)
		duplicates []model.TimeEntry
	)
	for _, e := range sorted {
		if !visible[e.Date] {
			continue
		}
		k := groupKey{project: e.ProjectID, description: model.DescriptionOrDefault(e.Description)}
		row, ok := rows[k]
		if !ok {
			row = &model.GridRow{
				ID:          uuid.NewString(),
				ProjectID:   e.ProjectID,
				Description: k.description,
				WeekEntries: make(map[string]model.DayCell),
				EntryIDs:    make(map[string]string),
				Status:      e.Status,
			}
			rows[k] = row
			order = append(order, k)
		}
		if _, taken := row.EntryIDs[e.Date]; taken {
			duplicates = append(duplicates, e)
			continue
		}
		row.EntryIDs[e.Date] = e.ID
		row.WeekEntries[e.Date] = model.DayCell{Duration: timecalc.FormatHHMM(e.DurationMinutes)}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].project != order[j].project {
			return order[i].project < order[j].project
		}
		return order[i].description < order[j].description
	})
	out := make([]model.GridRow, 0, len(order))
	for _, k := range order {
		out = append(out, *rows[k])
	}
	return out, duplicates
}
