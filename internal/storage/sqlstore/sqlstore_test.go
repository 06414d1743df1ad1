package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/storage"
)

var fixedNow = time.Date(2025, 9, 19, 10, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T, dialect Dialect) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := New(db, dialect)
	s.now = func() time.Time { return fixedNow }
	s.newID = func() string { return "id-1" }
	return s, mock
}

var columns = []string{"id", "company_id", "user_id", "project_id", "entry_date", "start_time", "end_time",
	"duration_minutes", "description", "status", "department", "account", "paycode", "created_at", "updated_at"}

func entryRow(rows *sqlmock.Rows, id, date string, minutes int) *sqlmock.Rows {
	start := time.Date(2025, 9, 19, 9, 0, 0, 0, time.UTC)
	return rows.AddRow(id, "c1", "u1", "p1", date, start, start.Add(time.Duration(minutes)*time.Minute),
		minutes, "desc", "draft", "", "", "", fixedNow, fixedNow)
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: Postgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))
	lite := &Store{dialect: SQLite}
	assert.Equal(t, "a = ? AND b = ?", lite.rebind("a = ? AND b = ?"))
}

func TestList_SQLite(t *testing.T) {
	s, mock := newMockStore(t, SQLite)

	rows := entryRow(sqlmock.NewRows(columns), "e1", "2025-09-19", 60)
	mock.ExpectQuery(`SELECT .* FROM time_entries WHERE entry_date >= \? AND entry_date <= \? AND company_id = \? ORDER BY`).
		WithArgs("2025-09-15", "2025-09-21", "c1").
		WillReturnRows(rows)

	from := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 9, 21, 23, 59, 59, 0, time.UTC)
	got, err := s.List(context.Background(), "c1", from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)
	assert.Equal(t, model.StatusDraft, got[0].Status)
	assert.Equal(t, 60, got[0].DurationMinutes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_PostgresPlaceholders(t *testing.T) {
	s, mock := newMockStore(t, Postgres)

	mock.ExpectQuery(`WHERE entry_date >= \$1 AND entry_date <= \$2 ORDER BY`).
		WithArgs("2025-09-15", "2025-09-21").
		WillReturnRows(sqlmock.NewRows(columns))

	day := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	got, err := s.List(context.Background(), "", day, day.AddDate(0, 0, 6))
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate(t *testing.T) {
	s, mock := newMockStore(t, SQLite)

	mock.ExpectExec(`INSERT INTO time_entries`).
		WithArgs("id-1", "c1", "u1", "p1", "2025-09-19", sqlmock.AnyArg(), sqlmock.AnyArg(),
			240, "desc", "draft", "", "", "", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := s.Create(context.Background(), model.TimeEntry{
		CompanyID: "c1", UserID: "u1", ProjectID: "p1", Date: "2025-09-19",
		DurationMinutes: 240, Description: "desc",
	})
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)
	assert.Equal(t, model.StatusDraft, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_InvalidDoesNotTouchDB(t *testing.T) {
	s, mock := newMockStore(t, SQLite)

	_, err := s.Create(context.Background(), model.TimeEntry{Date: "2025-09-19"})
	assert.ErrorIs(t, err, storage.ErrInvalidEntry)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate(t *testing.T) {
	s, mock := newMockStore(t, SQLite)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM time_entries WHERE id = \?`).
		WithArgs("e1").
		WillReturnRows(entryRow(sqlmock.NewRows(columns), "e1", "2025-09-19", 60))
	mock.ExpectExec(`UPDATE time_entries SET .* WHERE id = \?`).
		WithArgs("p1", sqlmock.AnyArg(), sqlmock.AnyArg(), 90, "renamed", "draft", fixedNow, "e1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mins, desc := 90, "renamed"
	got, err := s.Update(context.Background(), "e1", model.EntryPatch{DurationMinutes: &mins, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, 90, got.DurationMinutes)
	assert.Equal(t, "renamed", got.Description)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_NotFoundRollsBack(t *testing.T) {
	s, mock := newMockStore(t, SQLite)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM time_entries WHERE id = \?`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.Update(context.Background(), "nope", model.EntryPatch{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	s, mock := newMockStore(t, SQLite)

	mock.ExpectExec(`DELETE FROM time_entries WHERE id = \?`).
		WithArgs("e1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM time_entries WHERE id = \?`).
		WithArgs("e1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM time_entries WHERE id = \?`).
		WithArgs("e2").
		WillReturnError(errors.New("conn reset"))

	require.NoError(t, s.Delete(context.Background(), "e1"))
	assert.ErrorIs(t, s.Delete(context.Background(), "e1"), storage.ErrNotFound)
	err := s.Delete(context.Background(), "e2")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCompany(t *testing.T) {
	s, mock := newMockStore(t, Postgres)

	mock.ExpectQuery(`SELECT id, name, details FROM companies WHERE id = \$1`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "details"}).
			AddRow("c1", "Acme", `{"paycycles":[{"id":"pc1","name":"Sep","frequency":"monthly"}]}`))
	mock.ExpectQuery(`SELECT id, name, details FROM companies WHERE id = \$1`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	c, err := s.GetCompany(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name)
	require.Len(t, c.Paycycles, 1)
	assert.Equal(t, model.FrequencyMonthly, c.Paycycles[0].Frequency)

	_, err = s.GetCompany(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
