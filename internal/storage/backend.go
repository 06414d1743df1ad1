package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/timecalc"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidEntry = errors.New("invalid entry")
)

// Backend is the persistence collaborator the grid reconciles against.
// Implementations: FileStore, sqlstore.Store and remote.Client.
type Backend interface {
	// List returns the company's entries whose date lies in [from, to].
	List(ctx context.Context, companyID string, from, to time.Time) ([]model.TimeEntry, error)
	// Create persists a new entry and returns it with ID and timestamps set.
	Create(ctx context.Context, entry model.TimeEntry) (model.TimeEntry, error)
	// Update applies patch to the entry with the given id.
	Update(ctx context.Context, id string, patch model.EntryPatch) (model.TimeEntry, error)
	// Delete removes the entry with the given id.
	Delete(ctx context.Context, id string) error
}

// Directory serves the read-only company context.
type Directory interface {
	ListProjects(ctx context.Context, companyID string) ([]model.Project, error)
	GetCompany(ctx context.Context, id string) (model.Company, error)
}

// ValidateEntry checks the fields every backend requires on create.
func ValidateEntry(e model.TimeEntry) error {
	if e.CompanyID == "" {
		return fmt.Errorf("%w: company id is required", ErrInvalidEntry)
	}
	if _, err := time.Parse(timecalc.DateLayout, e.Date); err != nil {
		return fmt.Errorf("%w: date %q", ErrInvalidEntry, e.Date)
	}
	if e.DurationMinutes < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidEntry)
	}
	if _, err := model.ParseStatus(string(e.Status)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return nil
}
