package sqlstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/storage"
	"github.com/Tiliavir/timesheet-grid/internal/storage/sqlstore"
)

func openSQLite(t *testing.T) *sqlstore.Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "tsg.db")
	s, err := sqlstore.Open(context.Background(), sqlstore.SQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	start := time.Date(2025, 9, 19, 9, 0, 0, 0, time.UTC)
	created, err := s.Create(ctx, model.TimeEntry{
		CompanyID: "c1", UserID: "u1", ProjectID: "p1", Date: "2025-09-19",
		StartTime: start, EndTime: start.Add(4 * time.Hour),
		DurationMinutes: 240, Description: "desc", Paycode: "REG",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	from := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 9, 21, 0, 0, 0, 0, time.UTC)
	list, err := s.List(ctx, "c1", from, to)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.Equal(t, "REG", list[0].Paycode)
	assert.True(t, list[0].StartTime.Equal(start))

	other, err := s.List(ctx, "c2", from, to)
	require.NoError(t, err)
	assert.Empty(t, other)

	mins := 300
	updated, err := s.Update(ctx, created.ID, model.EntryPatch{DurationMinutes: &mins})
	require.NoError(t, err)
	assert.Equal(t, 300, updated.DurationMinutes)

	require.NoError(t, s.Delete(ctx, created.ID))
	err = s.Delete(ctx, created.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestSQLiteDirectory(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	companies := []model.Company{{
		ID: "c1", Name: "Acme",
		Departments: []model.Department{{ID: "d1", Name: "Ops"}},
	}}
	projects := []model.Project{
		{ID: "p2", CompanyID: "c1", Name: "Zeta", Status: model.ProjectActive},
		{ID: "p1", CompanyID: "c1", Name: "Alpha", Status: model.ProjectOnHold},
		{ID: "p3", CompanyID: "c2", Name: "Other", Status: model.ProjectActive},
	}
	require.NoError(t, s.SaveDirectory(ctx, companies, projects))

	c, err := s.GetCompany(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Ops", c.Departments[0].Name)

	ps, err := s.ListProjects(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "Alpha", ps[0].Name)
	assert.Equal(t, model.ProjectOnHold, ps[0].Status)

	// Migrations are idempotent.
	require.NoError(t, s.Migrate(ctx))
}
