// Package sqlstore implements storage.Backend and storage.Directory over
// database/sql, for SQLite (modernc.org/sqlite) and PostgreSQL (pgx).
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/Tiliavir/timesheet-grid/internal/dbx"
	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/storage"
	"github.com/Tiliavir/timesheet-grid/internal/storage/sqlstore/migrations"
	"github.com/Tiliavir/timesheet-grid/internal/timecalc"
)

// Dialect selects the driver and placeholder style.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) driver() (string, error) {
	switch d {
	case SQLite:
		return "sqlite", nil
	case Postgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported sql dialect %q", d)
	}
}

func (d Dialect) gooseDialect() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite3"
}

// Store is a SQL-backed Backend and Directory.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	newID   func() string
}

// New wraps an open database. Call Migrate before use.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now, newID: uuid.NewString}
}

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	driver, err := dialect.driver()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// One writer; avoids SQLITE_BUSY between concurrent saves.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	s := New(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(s.dialect.gooseDialect()); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const entryColumns = `id, company_id, user_id, project_id, entry_date, start_time, end_time,
	duration_minutes, description, status, department, account, paycode, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (model.TimeEntry, error) {
	var (
		e      model.TimeEntry
		status string
	)
	err := row.Scan(&e.ID, &e.CompanyID, &e.UserID, &e.ProjectID, &e.Date, &e.StartTime, &e.EndTime,
		&e.DurationMinutes, &e.Description, &status, &e.Department, &e.Account, &e.Paycode,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return model.TimeEntry{}, err
	}
	e.Status = model.Status(status)
	return e, nil
}

func (s *Store) List(ctx context.Context, companyID string, from, to time.Time) ([]model.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE entry_date >= ? AND entry_date <= ?`
	args := []any{timecalc.DateKey(from), timecalc.DateKey(to)}
	if companyID != "" {
		query += ` AND company_id = ?`
		args = append(args, companyID)
	}
	query += ` ORDER BY entry_date, created_at, id`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	out := []model.TimeEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, entry model.TimeEntry) (model.TimeEntry, error) {
	if err := storage.ValidateEntry(entry); err != nil {
		return model.TimeEntry{}, err
	}
	now := s.now().UTC()
	entry.ID = s.newID()
	if entry.Status == "" {
		entry.Status = model.StatusDraft
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now

	query := `INSERT INTO time_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		entry.ID, entry.CompanyID, entry.UserID, entry.ProjectID, entry.Date, entry.StartTime, entry.EndTime,
		entry.DurationMinutes, entry.Description, string(entry.Status), entry.Department, entry.Account,
		entry.Paycode, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return model.TimeEntry{}, fmt.Errorf("db error: %w", err)
	}
	return entry, nil
}

func (s *Store) getEntry(ctx context.Context, q dbx.DBTX, id string) (model.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE id = ?`
	e, err := scanEntry(q.QueryRowContext(ctx, s.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.TimeEntry{}, fmt.Errorf("entry %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return model.TimeEntry{}, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

func (s *Store) Update(ctx context.Context, id string, patch model.EntryPatch) (model.TimeEntry, error) {
	var out model.TimeEntry
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		e, err := s.getEntry(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(&e)
		if _, err := model.ParseStatus(string(e.Status)); err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidEntry, err)
		}
		e.UpdatedAt = s.now().UTC()

		query := `UPDATE time_entries SET project_id = ?, start_time = ?, end_time = ?,
			duration_minutes = ?, description = ?, status = ?, updated_at = ?
			WHERE id = ?`
		res, err := tx.ExecContext(ctx, s.rebind(query),
			e.ProjectID, e.StartTime, e.EndTime, e.DurationMinutes, e.Description, string(e.Status),
			e.UpdatedAt, id)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected error: %w", err)
		} else if n == 0 {
			return fmt.Errorf("entry %s: %w", id, storage.ErrNotFound)
		}
		out = e
		return nil
	})
	if err != nil {
		return model.TimeEntry{}, err
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM time_entries WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("entry %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// companyDetails is the JSON stored in companies.details.
type companyDetails struct {
	Paycycles   []model.Paycycle   `json:"paycycles"`
	Departments []model.Department `json:"departments"`
	Locations   []model.Location   `json:"locations"`
	Employees   []model.Employee   `json:"employees"`
}

func (s *Store) ListProjects(ctx context.Context, companyID string) ([]model.Project, error) {
	query := `SELECT id, company_id, name, description, start_date, status, color
		FROM projects WHERE company_id = ? ORDER BY name, id`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to select projects: %w", err)
	}
	defer rows.Close()

	out := []model.Project{}
	for rows.Next() {
		var (
			p      model.Project
			status string
		)
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Description, &p.StartDate, &status, &p.Color); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Status = model.ProjectStatus(status)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetCompany(ctx context.Context, id string) (model.Company, error) {
	var (
		c       model.Company
		details string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, name, details FROM companies WHERE id = ?`), id).
		Scan(&c.ID, &c.Name, &details)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Company{}, fmt.Errorf("company %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return model.Company{}, fmt.Errorf("db error: %w", err)
	}
	var d companyDetails
	if err := json.Unmarshal([]byte(details), &d); err != nil {
		return model.Company{}, fmt.Errorf("company %s details: %w", id, err)
	}
	c.Paycycles, c.Departments, c.Locations, c.Employees = d.Paycycles, d.Departments, d.Locations, d.Employees
	return c, nil
}

// SaveDirectory replaces the companies and projects tables in one transaction.
func (s *Store) SaveDirectory(ctx context.Context, companies []model.Company, projects []model.Project) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM projects`); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM companies`); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		for _, c := range companies {
			details, err := json.Marshal(companyDetails{
				Paycycles: c.Paycycles, Departments: c.Departments, Locations: c.Locations, Employees: c.Employees,
			})
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO companies (id, name, details) VALUES (?, ?, ?)`),
				c.ID, c.Name, string(details))
			if err != nil {
				return fmt.Errorf("insert company %s: %w", c.ID, err)
			}
		}
		for _, p := range projects {
			_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO projects
				(id, company_id, name, description, start_date, status, color) VALUES (?, ?, ?, ?, ?, ?, ?)`),
				p.ID, p.CompanyID, p.Name, p.Description, p.StartDate, string(p.Status), p.Color)
			if err != nil {
				return fmt.Errorf("insert project %s: %w", p.ID, err)
			}
		}
		return nil
	})
}
