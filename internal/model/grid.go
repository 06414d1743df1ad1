package model

// DayCell holds the duration typed into one grid cell, as "HH:MM" once
// committed or a partially typed value while editing.
type DayCell struct {
	Duration string `json:"duration"`
}

// GridRow is a view over the entries sharing (ProjectID, Description) within
// the displayed week, plus any unsaved edits. It is never persisted directly.
type GridRow struct {
	ID          string             `json:"id"`
	ProjectID   string             `json:"projectId"`
	Description string             `json:"description"`
	WeekEntries map[string]DayCell `json:"weekEntries"`
	// EntryIDs binds a date to the persisted entry backing that cell.
	EntryIDs map[string]string `json:"entryIds,omitempty"`
	Status   Status            `json:"status"`
	IsNew    bool              `json:"isNew"`
}

// Clone returns a deep copy of r.
func (r GridRow) Clone() GridRow {
	out := r
	out.WeekEntries = make(map[string]DayCell, len(r.WeekEntries))
	for k, v := range r.WeekEntries {
		out.WeekEntries[k] = v
	}
	out.EntryIDs = make(map[string]string, len(r.EntryIDs))
	for k, v := range r.EntryIDs {
		out.EntryIDs[k] = v
	}
	return out
}

// Populated reports whether the row has at least one non-empty cell.
func (r GridRow) Populated() bool {
	for _, c := range r.WeekEntries {
		if c.Duration != "" {
			return true
		}
	}
	return false
}
