// Package reconcile turns a pending cell save into at most one create, update
// or delete against the persistence backend.
//
// Matching is exact: a cell bound to an entry ID matches that entry while it
// is still in the remote list, otherwise (date, projectId, description) must
// be equal, a blank description standing for model.DefaultDescription. No
// conflict detection is done; the last write observed by this client wins.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/Tiliavir/timesheet-grid/internal/logging"
	"github.com/Tiliavir/timesheet-grid/internal/metrics"
	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/storage"
	"github.com/Tiliavir/timesheet-grid/internal/timecalc"
)

// Action is the persistence call a pending save resolves to.
type Action int

const (
	ActionNone Action = iota
	ActionCreate
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "none"
	}
}

// DefaultStartHour is the wall-clock hour new entries start at.
const DefaultStartHour = 9

// PendingSave is one cell waiting to be persisted, read from the row at the
// moment its timer fired.
type PendingSave struct {
	RowID       string
	Date        string
	Duration    string
	IsNewRow    bool
	ProjectID   string
	Description string
	// EntryID is the entry the cell is bound to, if any.
	EntryID   string
	CompanyID string
	UserID    string
}

// Decision is the outcome of Decide.
type Decision struct {
	Action  Action
	Minutes int
	// Match is the remote entry the save resolved to, nil for create/none.
	Match *model.TimeEntry
}

// Match returns the remote entry save refers to, or nil.
func Match(save PendingSave, remote []model.TimeEntry) *model.TimeEntry {
	if save.EntryID != "" {
		for i := range remote {
			if remote[i].ID == save.EntryID {
				return &remote[i]
			}
		}
	}
	desc := model.DescriptionOrDefault(save.Description)
	for i := range remote {
		e := &remote[i]
		if e.Date == save.Date && e.ProjectID == save.ProjectID && model.DescriptionOrDefault(e.Description) == desc {
			return e
		}
	}
	return nil
}

// Decide picks the single call that brings the remote list in line with save.
func Decide(save PendingSave, remote []model.TimeEntry) Decision {
	minutes := timecalc.DurationMinutes(timecalc.NormalizeDuration(save.Duration))
	match := Match(save, remote)

	if minutes == 0 {
		if match == nil {
			return Decision{Action: ActionNone}
		}
		return Decision{Action: ActionDelete, Match: match}
	}
	if match != nil {
		return Decision{Action: ActionUpdate, Minutes: minutes, Match: match}
	}
	// Non-new rows without a match also create; the row was probably renamed
	// or loaded from a list that has since changed.
	return Decision{Action: ActionCreate, Minutes: minutes}
}

// Result reports what Apply did.
type Result struct {
	Action    Action
	Entry     model.TimeEntry
	DeletedID string
}

// Reconciler executes decisions against a Backend.
type Reconciler struct {
	backend storage.Backend
	logger  logging.Logger
	loc     *time.Location
}

// New returns a Reconciler. A nil logger discards output.
func New(backend storage.Backend, logger logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Reconciler{backend: backend, logger: logger, loc: time.Local}
}

// Apply decides against remote and issues at most one backend call.
func (r *Reconciler) Apply(ctx context.Context, save PendingSave, remote []model.TimeEntry) (Result, error) {
	d := Decide(save, remote)
	log := r.logger.With("row_id", save.RowID, "date", save.Date, "action", d.Action.String())

	switch d.Action {
	case ActionNone:
		log.Debug(ctx, "nothing to persist")
		return Result{Action: ActionNone}, nil

	case ActionDelete:
		if err := r.DeleteEntry(ctx, d.Match.ID); err != nil {
			return Result{Action: ActionDelete}, err
		}
		return Result{Action: ActionDelete, DeletedID: d.Match.ID}, nil

	case ActionUpdate:
		patch, err := r.updatePatch(save, *d.Match, d.Minutes)
		if err != nil {
			return Result{Action: ActionUpdate}, err
		}
		entry, err := r.backend.Update(ctx, d.Match.ID, patch)
		observe(ActionUpdate, err)
		if err != nil {
			log.Error(ctx, "update failed", "entry_id", d.Match.ID, "error", err)
			return Result{Action: ActionUpdate}, fmt.Errorf("update entry %s: %w", d.Match.ID, err)
		}
		log.Debug(ctx, "entry updated", "entry_id", entry.ID, "minutes", d.Minutes)
		return Result{Action: ActionUpdate, Entry: entry}, nil

	default:
		entry, err := r.newEntry(save, d.Minutes)
		if err != nil {
			return Result{Action: ActionCreate}, err
		}
		created, err := r.backend.Create(ctx, entry)
		observe(ActionCreate, err)
		if err != nil {
			log.Error(ctx, "create failed", "error", err)
			return Result{Action: ActionCreate}, fmt.Errorf("create entry for %s: %w", save.Date, err)
		}
		log.Debug(ctx, "entry created", "entry_id", created.ID, "minutes", d.Minutes)
		return Result{Action: ActionCreate, Entry: created}, nil
	}
}

// DeleteEntry deletes id, logging and counting the call.
func (r *Reconciler) DeleteEntry(ctx context.Context, id string) error {
	err := r.backend.Delete(ctx, id)
	observe(ActionDelete, err)
	if err != nil {
		r.logger.Error(ctx, "delete failed", "entry_id", id, "error", err)
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	r.logger.Debug(ctx, "entry deleted", "entry_id", id)
	return nil
}

func (r *Reconciler) startOf(date string) (time.Time, error) {
	day, err := timecalc.ParseDate(date, r.loc)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(DefaultStartHour * time.Hour), nil
}

func (r *Reconciler) newEntry(save PendingSave, minutes int) (model.TimeEntry, error) {
	start, err := r.startOf(save.Date)
	if err != nil {
		return model.TimeEntry{}, err
	}
	return model.TimeEntry{
		ProjectID:       save.ProjectID,
		Date:            save.Date,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
		Description:     model.DescriptionOrDefault(save.Description),
		Status:          model.StatusDraft,
		CompanyID:       save.CompanyID,
		UserID:          save.UserID,
	}, nil
}

func (r *Reconciler) updatePatch(save PendingSave, match model.TimeEntry, minutes int) (model.EntryPatch, error) {
	start := match.StartTime
	if start.IsZero() {
		var err error
		if start, err = r.startOf(save.Date); err != nil {
			return model.EntryPatch{}, err
		}
	}
	end := start.Add(time.Duration(minutes) * time.Minute)
	project := save.ProjectID
	desc := model.DescriptionOrDefault(save.Description)
	return model.EntryPatch{
		ProjectID:       &project,
		Description:     &desc,
		StartTime:       &start,
		EndTime:         &end,
		DurationMinutes: &minutes,
	}, nil
}

func observe(a Action, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.PersistenceCallsTotal.WithLabelValues(a.String(), result).Inc()
}

// Merge returns remote with res applied: created entries appended, updated
// entries replaced, deleted entries removed. remote is not modified.
func Merge(remote []model.TimeEntry, res Result) []model.TimeEntry {
	out := make([]model.TimeEntry, 0, len(remote)+1)
	switch res.Action {
	case ActionCreate:
		out = append(out, remote...)
		out = append(out, res.Entry)
	case ActionUpdate:
		for _, e := range remote {
			if e.ID == res.Entry.ID {
				e = res.Entry
			}
			out = append(out, e)
		}
	case ActionDelete:
		for _, e := range remote {
			if e.ID != res.DeletedID {
				out = append(out, e)
			}
		}
	default:
		out = append(out, remote...)
	}
	return out
}
