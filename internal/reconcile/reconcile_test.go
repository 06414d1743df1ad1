package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/reconcile"
	"github.com/Tiliavir/timesheet-grid/internal/storage/storagetest"
)

func remoteEntry(id, date, project, desc string, minutes int) model.TimeEntry {
	return model.TimeEntry{
		ID:              id,
		Date:            date,
		ProjectID:       project,
		Description:     desc,
		DurationMinutes: minutes,
		CompanyID:       "c1",
		UserID:          "u1",
		Status:          model.StatusDraft,
	}
}

func save(date, duration string, isNew bool) reconcile.PendingSave {
	return reconcile.PendingSave{
		RowID:       "r1",
		Date:        date,
		Duration:    duration,
		IsNewRow:    isNew,
		ProjectID:   "p1",
		Description: "desc",
		CompanyID:   "c1",
		UserID:      "u1",
	}
}

func TestDecide(t *testing.T) {
	remote := []model.TimeEntry{
		remoteEntry("e1", "2025-09-19", "p1", "desc", 120),
		remoteEntry("e2", "2025-09-18", "p1", "", 60),
	}

	tests := []struct {
		name   string
		save   reconcile.PendingSave
		want   reconcile.Action
		match  string
		minute int
	}{
		{"match updates", save("2025-09-19", "04:00", false), reconcile.ActionUpdate, "e1", 240},
		{"match updates even for new row", save("2025-09-19", "04:00", true), reconcile.ActionUpdate, "e1", 240},
		{"no match on new row creates", save("2025-09-17", "04:00", true), reconcile.ActionCreate, "", 240},
		{"no match on existing row falls back to create", save("2025-09-17", "01:30", false), reconcile.ActionCreate, "", 90},
		{"empty with match deletes", save("2025-09-19", "", false), reconcile.ActionDelete, "e1", 0},
		{"zero with match deletes", save("2025-09-19", "00:00", false), reconcile.ActionDelete, "e1", 0},
		{"empty without match does nothing", save("2025-09-17", "", false), reconcile.ActionNone, "", 0},
		{"raw duration is normalized", save("2025-09-19", "830", false), reconcile.ActionUpdate, "e1", 510},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := reconcile.Decide(tt.save, remote)
			assert.Equal(t, tt.want, d.Action)
			assert.Equal(t, tt.minute, d.Minutes)
			if tt.match == "" {
				assert.Nil(t, d.Match)
			} else {
				require.NotNil(t, d.Match)
				assert.Equal(t, tt.match, d.Match.ID)
			}
		})
	}
}

func TestMatch_BlankDescriptionFallsBack(t *testing.T) {
	remote := []model.TimeEntry{remoteEntry("e2", "2025-09-18", "p1", "Time entry", 60)}
	s := save("2025-09-18", "02:00", false)
	s.Description = ""

	m := reconcile.Match(s, remote)
	require.NotNil(t, m)
	assert.Equal(t, "e2", m.ID)
}

func TestMatch_PrefersBoundEntry(t *testing.T) {
	remote := []model.TimeEntry{
		remoteEntry("old", "2025-09-19", "p1", "before rename", 60),
		remoteEntry("other", "2025-09-19", "p1", "desc", 30),
	}
	s := save("2025-09-19", "02:00", false)
	s.EntryID = "old"

	m := reconcile.Match(s, remote)
	require.NotNil(t, m)
	assert.Equal(t, "old", m.ID)

	// A bound ID that is gone falls back to the field match.
	s.EntryID = "vanished"
	m = reconcile.Match(s, remote)
	require.NotNil(t, m)
	assert.Equal(t, "other", m.ID)
}

func TestApply_UpdateNotCreate(t *testing.T) {
	existing := remoteEntry("e1", "2025-09-19", "p1", "desc", 120)
	store := storagetest.NewMemStore(existing)
	r := reconcile.New(store, nil)

	res, err := r.Apply(context.Background(), save("2025-09-19", "04:00", false), []model.TimeEntry{existing})
	require.NoError(t, err)

	assert.Equal(t, reconcile.ActionUpdate, res.Action)
	assert.Equal(t, []storagetest.Call{{Op: "update", ID: "e1"}}, store.Calls(false))
	assert.Equal(t, 240, res.Entry.DurationMinutes)
	assert.Equal(t, res.Entry.StartTime.Add(240*time.Minute), res.Entry.EndTime)
}

func TestApply_CreateForNewRow(t *testing.T) {
	store := storagetest.NewMemStore()
	r := reconcile.New(store, nil)

	res, err := r.Apply(context.Background(), save("2025-09-19", "04:00", true), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Count("create"))
	assert.Len(t, store.Calls(false), 1)

	e := res.Entry
	assert.Equal(t, reconcile.ActionCreate, res.Action)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, model.StatusDraft, e.Status)
	assert.Equal(t, "2025-09-19", e.Date)
	assert.Equal(t, 240, e.DurationMinutes)
	assert.Equal(t, 9, e.StartTime.Hour())
	assert.Equal(t, 13, e.EndTime.Hour())
}

func TestApply_CreateUsesDefaultDescription(t *testing.T) {
	store := storagetest.NewMemStore()
	r := reconcile.New(store, nil)

	s := save("2025-09-19", "01:00", true)
	s.Description = ""
	res, err := r.Apply(context.Background(), s, nil)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultDescription, res.Entry.Description)
}

func TestApply_DeleteOnEmpty(t *testing.T) {
	existing := remoteEntry("e1", "2025-09-19", "p1", "desc", 120)
	store := storagetest.NewMemStore(existing)
	r := reconcile.New(store, nil)

	res, err := r.Apply(context.Background(), save("2025-09-19", "", false), []model.TimeEntry{existing})
	require.NoError(t, err)

	assert.Equal(t, reconcile.ActionDelete, res.Action)
	assert.Equal(t, "e1", res.DeletedID)
	assert.Equal(t, []storagetest.Call{{Op: "delete", ID: "e1"}}, store.Calls(false))
	assert.Empty(t, store.Entries())
}

func TestApply_DeleteWithoutMatchIsNoop(t *testing.T) {
	store := storagetest.NewMemStore()
	r := reconcile.New(store, nil)

	res, err := r.Apply(context.Background(), save("2025-09-19", "", false), nil)
	require.NoError(t, err)
	assert.Equal(t, reconcile.ActionNone, res.Action)
	assert.Empty(t, store.Calls(false))
}

func TestApply_BackendErrorIsWrapped(t *testing.T) {
	boom := errors.New("service unavailable")
	store := storagetest.NewMemStore()
	store.Fail["create"] = boom
	r := reconcile.New(store, nil)

	_, err := r.Apply(context.Background(), save("2025-09-19", "01:00", true), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestMerge(t *testing.T) {
	a := remoteEntry("a", "2025-09-19", "p1", "x", 60)
	b := remoteEntry("b", "2025-09-19", "p2", "y", 60)
	remote := []model.TimeEntry{a, b}

	created := remoteEntry("c", "2025-09-20", "p1", "x", 30)
	got := reconcile.Merge(remote, reconcile.Result{Action: reconcile.ActionCreate, Entry: created})
	assert.Len(t, got, 3)
	assert.Len(t, remote, 2)

	changed := a
	changed.DurationMinutes = 90
	got = reconcile.Merge(remote, reconcile.Result{Action: reconcile.ActionUpdate, Entry: changed})
	assert.Equal(t, 90, got[0].DurationMinutes)
	assert.Equal(t, 60, remote[0].DurationMinutes)

	got = reconcile.Merge(remote, reconcile.Result{Action: reconcile.ActionDelete, DeletedID: "a"})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}
