package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/timecalc"
)

// BaseDir returns the root data directory (~/.tsg).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".tsg"), nil
}

// dayFilePath returns the path for the given date's JSON file.
func dayFilePath(base string, t time.Time) string {
	return filepath.Join(base, t.Format("2006"), t.Format("01"), t.Format("02")+".json")
}

// LoadDay loads the DayFile for the given date. Returns an empty DayFile if not found.
func LoadDay(base string, t time.Time) (model.DayFile, error) {
	path := dayFilePath(base, t)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return model.DayFile{Date: t.Format(timecalc.DateLayout), Entries: []model.TimeEntry{}}, nil
	}
	if err != nil {
		return model.DayFile{}, fmt.Errorf("storage error reading %s: %w", path, err)
	}

	var df model.DayFile
	if err := json.Unmarshal(data, &df); err != nil {
		// Back up corrupt file and abort.
		backupPath := path + ".corrupt"
		_ = os.Rename(path, backupPath)
		return model.DayFile{}, fmt.Errorf("corrupt JSON in %s (backed up to %s): %w", path, backupPath, err)
	}
	return df, nil
}

// SaveDay atomically writes a DayFile for the given date.
func SaveDay(base string, t time.Time, df model.DayFile) error {
	return writeJSONAtomic(dayFilePath(base, t), df)
}

func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("storage error creating directories: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage error marshalling JSON: %w", err)
	}

	// Atomic write: write to temp file then rename.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("storage error writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage error renaming temp file: %w", err)
	}
	return nil
}

// LoadRange loads all entries in [from, to] inclusive.
func LoadRange(base string, from, to time.Time) ([]model.TimeEntry, error) {
	var entries []model.TimeEntry
	from = timecalc.StartOfDay(from)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		df, err := LoadDay(base, d)
		if err != nil {
			return nil, err
		}
		entries = append(entries, df.Entries...)
	}
	return entries, nil
}

// FileStore is a Backend over one JSON file per calendar day.
type FileStore struct {
	base string
	now  func() time.Time

	mu sync.Mutex
}

// NewFileStore returns a FileStore rooted at base.
func NewFileStore(base string) *FileStore {
	return &FileStore{base: base, now: time.Now}
}

// Base returns the data directory.
func (s *FileStore) Base() string {
	return s.base
}

func (s *FileStore) List(ctx context.Context, companyID string, from, to time.Time) ([]model.TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := LoadRange(s.base, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]model.TimeEntry, 0, len(all))
	for _, e := range all {
		if companyID == "" || e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *FileStore) Create(ctx context.Context, entry model.TimeEntry) (model.TimeEntry, error) {
	if err := ValidateEntry(entry); err != nil {
		return model.TimeEntry{}, err
	}
	day, err := timecalc.ParseDate(entry.Date, time.Local)
	if err != nil {
		return model.TimeEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// The ID carries the entry's day so Update and Delete find the file directly.
	stamp := time.Date(day.Year(), day.Month(), day.Day(), now.Hour(), now.Minute(), now.Second(), 0, time.Local)
	entry.ID = timecalc.GenerateID(stamp)
	if entry.Status == "" {
		entry.Status = model.StatusDraft
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now

	df, err := LoadDay(s.base, day)
	if err != nil {
		return model.TimeEntry{}, err
	}
	df.Entries = append(df.Entries, entry)
	if err := SaveDay(s.base, day, df); err != nil {
		return model.TimeEntry{}, err
	}
	return entry, nil
}

func (s *FileStore) Update(ctx context.Context, id string, patch model.EntryPatch) (model.TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day, df, idx, err := s.locate(id)
	if err != nil {
		return model.TimeEntry{}, err
	}
	e := df.Entries[idx]
	patch.Apply(&e)
	e.UpdatedAt = s.now()
	df.Entries[idx] = e
	if err := SaveDay(s.base, day, df); err != nil {
		return model.TimeEntry{}, err
	}
	return e, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day, df, idx, err := s.locate(id)
	if err != nil {
		return err
	}
	df.Entries = append(df.Entries[:idx], df.Entries[idx+1:]...)
	return SaveDay(s.base, day, df)
}

// locate finds the day file holding id, trying the day encoded in the ID
// first and falling back to a scan of the data directory.
func (s *FileStore) locate(id string) (time.Time, model.DayFile, int, error) {
	if len(id) >= 8 {
		if day, err := time.ParseInLocation("20060102", id[:8], time.Local); err == nil {
			df, err := LoadDay(s.base, day)
			if err != nil {
				return time.Time{}, model.DayFile{}, -1, err
			}
			if i := indexOf(df.Entries, id); i >= 0 {
				return day, df, i, nil
			}
		}
	}

	days, err := s.dayFiles()
	if err != nil {
		return time.Time{}, model.DayFile{}, -1, err
	}
	for _, day := range days {
		df, err := LoadDay(s.base, day)
		if err != nil {
			return time.Time{}, model.DayFile{}, -1, err
		}
		if i := indexOf(df.Entries, id); i >= 0 {
			return day, df, i, nil
		}
	}
	return time.Time{}, model.DayFile{}, -1, fmt.Errorf("entry %s: %w", id, ErrNotFound)
}

// dayFiles lists the days that have a file, newest first.
func (s *FileStore) dayFiles() ([]time.Time, error) {
	var days []time.Time
	err := filepath.WalkDir(s.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		rel, err := filepath.Rel(s.base, path)
		if err != nil {
			return nil
		}
		day, err := time.ParseInLocation("2006/01/02.json", filepath.ToSlash(rel), time.Local)
		if err != nil {
			return nil
		}
		days = append(days, day)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage error scanning %s: %w", s.base, err)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })
	return days, nil
}

func indexOf(entries []model.TimeEntry, id string) int {
	for i := range entries {
		if entries[i].ID == id {
			return i
		}
	}
	return -1
}
