// Package storagetest provides an in-memory storage.Backend that records the
// calls made against it.
package storagetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/storage"
	"github.com/Tiliavir/timesheet-grid/internal/timecalc"
)

// Call is one recorded backend call.
type Call struct {
	Op string
	ID string
}

// MemStore is a thread-safe in-memory Backend and Directory.
type MemStore struct {
	mu       sync.Mutex
	entries  map[string]model.TimeEntry
	calls    []Call
	projects []model.Project
	company  map[string]model.Company

	// Fail, when set, is returned by the named operation ("create", ...).
	Fail map[string]error
}

func NewMemStore(entries ...model.TimeEntry) *MemStore {
	m := &MemStore{
		entries: make(map[string]model.TimeEntry),
		company: make(map[string]model.Company),
		Fail:    make(map[string]error),
	}
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		m.entries[e.ID] = e
	}
	return m
}

// AddCompany registers a company and its projects for the Directory methods.
func (m *MemStore) AddCompany(c model.Company, projects ...model.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.company[c.ID] = c
	m.projects = append(m.projects, projects...)
}

func (m *MemStore) record(op, id string) error {
	m.calls = append(m.calls, Call{Op: op, ID: id})
	return m.Fail[op]
}

func (m *MemStore) List(ctx context.Context, companyID string, from, to time.Time) ([]model.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("list", ""); err != nil {
		return nil, err
	}
	lo, hi := timecalc.DateKey(from), timecalc.DateKey(to)
	out := []model.TimeEntry{}
	for _, e := range m.entries {
		if companyID != "" && e.CompanyID != companyID {
			continue
		}
		if e.Date < lo || e.Date > hi {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemStore) Create(ctx context.Context, entry model.TimeEntry) (model.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("create", ""); err != nil {
		return model.TimeEntry{}, err
	}
	if err := storage.ValidateEntry(entry); err != nil {
		return model.TimeEntry{}, err
	}
	entry.ID = uuid.NewString()
	if entry.Status == "" {
		entry.Status = model.StatusDraft
	}
	m.entries[entry.ID] = entry
	m.calls[len(m.calls)-1].ID = entry.ID
	return entry, nil
}

func (m *MemStore) Update(ctx context.Context, id string, patch model.EntryPatch) (model.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("update", id); err != nil {
		return model.TimeEntry{}, err
	}
	e, ok := m.entries[id]
	if !ok {
		return model.TimeEntry{}, fmt.Errorf("entry %s: %w", id, storage.ErrNotFound)
	}
	patch.Apply(&e)
	m.entries[id] = e
	return e, nil
}

func (m *MemStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("delete", id); err != nil {
		return err
	}
	if _, ok := m.entries[id]; !ok {
		return fmt.Errorf("entry %s: %w", id, storage.ErrNotFound)
	}
	delete(m.entries, id)
	return nil
}

func (m *MemStore) ListProjects(ctx context.Context, companyID string) ([]model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Project
	for _, p := range m.projects {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemStore) GetCompany(ctx context.Context, id string) (model.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.company[id]
	if !ok {
		return model.Company{}, fmt.Errorf("company %s: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

// Calls returns the recorded calls, excluding List unless withList is set.
func (m *MemStore) Calls(withList bool) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, 0, len(m.calls))
	for _, c := range m.calls {
		if c.Op == "list" && !withList {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Count returns how many times op was called.
func (m *MemStore) Count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Entries returns the stored entries sorted by date then ID.
func (m *MemStore) Entries() []model.TimeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.TimeEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out
}
