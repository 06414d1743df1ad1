// Package grid holds the weekly time-entry grid and persists edits through
// debounced reconciliation against a storage.Backend.
//
// Edits are applied to local state immediately. Row field changes arm a
// per-row timer and cell edits a per-cell timer; when a timer fires the
// current row state is read and reconciled. Committing a cell cancels its
// timer and saves straight away. Saves for the same cell never overlap: a
// save queued while one is running is folded into a follow-up run.
package grid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tiliavir/timesheet-grid/internal/debounce"
	"github.com/Tiliavir/timesheet-grid/internal/logging"
	"github.com/Tiliavir/timesheet-grid/internal/metrics"
	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/reconcile"
	"github.com/Tiliavir/timesheet-grid/internal/storage"
	"github.com/Tiliavir/timesheet-grid/internal/timecalc"
)

const (
	DefaultRowDelay  = time.Second
	DefaultCellDelay = 2 * time.Second
)

// Field names accepted by UpdateRow.
const (
	FieldProject     = "project"
	FieldDescription = "description"
)

// SaveHook is called after every reconciliation attempt.
type SaveHook func(save reconcile.PendingSave, res reconcile.Result, err error)

type Options struct {
	Backend   storage.Backend
	Confirmer Confirmer
	Logger    logging.Logger
	CompanyID string
	UserID    string
	// Week is any time within the week to display. Defaults to now.
	Week            time.Time
	RowDelay        time.Duration
	CellDelay       time.Duration
	Clock           debounce.Clock
	IncludeSaturday bool
	IncludeSunday   bool
	OnSave          SaveHook
}

type Store struct {
	backend    storage.Backend
	reconciler *reconcile.Reconciler
	confirmer  Confirmer
	logger     logging.Logger
	timers     *debounce.Debouncer
	rowDelay   time.Duration
	cellDelay  time.Duration
	onSave     SaveHook

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	company  string
	user     string
	week     time.Time
	days     []string
	saturday bool
	sunday   bool
	rows     []model.GridRow
	remote   []model.TimeEntry
	pending  map[string]bool
	running  map[string]bool
	epoch    uint64
	closed   bool
}

// New returns a Store for opts. Call Load to fetch the week.
func New(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Confirmer == nil {
		opts.Confirmer = AlwaysConfirm
	}
	if opts.RowDelay <= 0 {
		opts.RowDelay = DefaultRowDelay
	}
	if opts.CellDelay <= 0 {
		opts.CellDelay = DefaultCellDelay
	}
	if opts.Week.IsZero() {
		opts.Week = time.Now()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		backend:    opts.Backend,
		reconciler: reconcile.New(opts.Backend, opts.Logger),
		confirmer:  opts.Confirmer,
		logger:     opts.Logger,
		timers:     debounce.New(opts.Clock),
		rowDelay:   opts.RowDelay,
		cellDelay:  opts.CellDelay,
		onSave:     opts.OnSave,
		ctx:        ctx,
		cancel:     cancel,
		company:    opts.CompanyID,
		user:       opts.UserID,
		saturday:   opts.IncludeSaturday,
		sunday:     opts.IncludeSunday,
		pending:    make(map[string]bool),
		running:    make(map[string]bool),
	}
	s.setWeekLocked(opts.Week)
	return s
}

func cellKey(rowID, date string) string {
	return rowID + "|" + date
}

func splitKey(key string) (rowID, date string) {
	rowID, date, _ = strings.Cut(key, "|")
	return rowID, date
}

func (s *Store) setWeekLocked(week time.Time) {
	monday, _ := timecalc.WeekRange(week)
	s.week = monday
	s.days = timecalc.WeekDays(monday)
}

// visibleLocked returns the dates of the displayed week that are shown.
func (s *Store) visibleLocked() map[string]bool {
	out := make(map[string]bool, len(s.days))
	for _, d := range s.days {
		if !s.saturday && timecalc.IsWeekday(d, time.Saturday) {
			continue
		}
		if !s.sunday && timecalc.IsWeekday(d, time.Sunday) {
			continue
		}
		out[d] = true
	}
	return out
}

// resetLocked drops every timer and pending save and starts a new epoch so
// results of in-flight calls are not applied to the new context.
func (s *Store) resetLocked() {
	s.timers.CancelMatching(func(string) bool { return true })
	if n := len(s.pending); n > 0 {
		metrics.PendingSavesDroppedTotal.Add(float64(n))
	}
	s.pending = make(map[string]bool)
	s.epoch++
}

// Load fetches the displayed week for the current company and rebuilds the
// rows from it. Unsaved edits and armed timers are discarded.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.resetLocked()
	epoch := s.epoch
	company := s.company
	from := s.week
	to := timecalc.EndOfDay(from.AddDate(0, 0, 6))
	s.mu.Unlock()

	entries, err := s.backend.List(ctx, company, from, to)
	if err != nil {
		return fmt.Errorf("load week %s: %w", timecalc.ISOWeekLabel(from), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		// Another switch happened while loading.
		return nil
	}
	rows, dups := groupRows(entries, s.visibleLocked())
	for _, d := range dups {
		s.logger.Warn(ctx, "duplicate entry for grid cell", "entry_id", d.ID, "date", d.Date,
			"project_id", d.ProjectID, "description", d.Description)
	}
	s.rows = rows
	s.remote = entries
	s.logger.Debug(ctx, "week loaded", "company_id", company, "week", timecalc.ISOWeekLabel(from),
		"entries", len(entries), "rows", len(rows))
	return nil
}

// SetWeek switches to the week containing week and reloads.
func (s *Store) SetWeek(ctx context.Context, week time.Time) error {
	s.mu.Lock()
	s.setWeekLocked(week)
	s.mu.Unlock()
	return s.Load(ctx)
}

// SetCompany switches to companyID and reloads.
func (s *Store) SetCompany(ctx context.Context, companyID string) error {
	s.mu.Lock()
	s.company = companyID
	s.mu.Unlock()
	return s.Load(ctx)
}

// Refresh refetches the remote list without touching the rows.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	epoch := s.epoch
	company := s.company
	from := s.week
	s.mu.Unlock()

	entries, err := s.backend.List(ctx, company, from, timecalc.EndOfDay(from.AddDate(0, 0, 6)))
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch == s.epoch {
		s.remote = entries
	}
	return nil
}

// AddRow appends an empty new row and returns its ID.
func (s *Store) AddRow() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := model.GridRow{
		ID:          uuid.NewString(),
		WeekEntries: make(map[string]model.DayCell),
		EntryIDs:    make(map[string]string),
		Status:      model.StatusDraft,
		IsNew:       true,
	}
	s.rows = append(s.rows, row)
	return row.ID
}

func (s *Store) rowIndexLocked(id string) int {
	for i := range s.rows {
		if s.rows[i].ID == id {
			return i
		}
	}
	return -1
}

// UpdateRow sets the project or description of a row and arms the row timer.
// When it fires every populated cell of the row is saved.
func (s *Store) UpdateRow(id, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	i := s.rowIndexLocked(id)
	if i < 0 {
		return fmt.Errorf("row %s: %w", id, ErrRowNotFound)
	}
	switch field {
	case FieldProject:
		s.rows[i].ProjectID = value
	case FieldDescription:
		s.rows[i].Description = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	s.timers.Arm(id, s.rowDelay, func() { s.rowFired(id) })
	return nil
}

func (s *Store) rowFired(id string) {
	metrics.DebounceFiresTotal.WithLabelValues("row").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.rowIndexLocked(id)
	if i < 0 {
		return
	}
	for date, cell := range s.rows[i].WeekEntries {
		// Zero cells are only deleted when the user clears them.
		if timecalc.DurationMinutes(cell.Duration) == 0 {
			continue
		}
		key := cellKey(id, date)
		s.timers.Cancel(key)
		s.queueLocked(key)
	}
}

// UpdateDayEntry records raw input for one cell. While typing (isFinal false)
// the value is only sanitized and the cell timer is re-armed. On commit the
// value is normalized to HH:MM and saved without waiting for the timer.
func (s *Store) UpdateDayEntry(id, date, raw string, isFinal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.inWeekLocked(date) {
		return fmt.Errorf("%w: %s", ErrDateOutsideWeek, date)
	}
	if !s.visibleLocked()[date] {
		return fmt.Errorf("%w: %s", ErrDayHidden, date)
	}
	i := s.rowIndexLocked(id)
	if i < 0 {
		return fmt.Errorf("row %s: %w", id, ErrRowNotFound)
	}

	key := cellKey(id, date)
	row := &s.rows[i]
	if !isFinal {
		row.WeekEntries[date] = model.DayCell{Duration: timecalc.SanitizeDuration(raw)}
		s.timers.Arm(key, s.cellDelay, func() { s.cellFired(key) })
		return nil
	}

	row.WeekEntries[date] = model.DayCell{Duration: timecalc.NormalizeDuration(raw)}
	s.timers.Cancel(key)
	s.queueLocked(key)
	return nil
}

func (s *Store) inWeekLocked(date string) bool {
	for _, d := range s.days {
		if d == date {
			return true
		}
	}
	return false
}

func (s *Store) cellFired(key string) {
	metrics.DebounceFiresTotal.WithLabelValues("cell").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queueLocked(key)
}

// queueLocked marks key as pending and starts a save worker for it.
func (s *Store) queueLocked(key string) {
	if s.closed {
		return
	}
	s.pending[key] = true
	if s.running[key] {
		// The running worker picks the key up again when it finishes.
		return
	}
	s.running[key] = true
	s.wg.Add(1)
	go s.run(key)
}

func (s *Store) run(key string) {
	defer s.wg.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	defer delete(s.running, key)

	for s.pending[key] && !s.closed {
		delete(s.pending, key)
		save, ok := s.pendingSaveLocked(key)
		if !ok {
			continue
		}
		remote := make([]model.TimeEntry, len(s.remote))
		copy(remote, s.remote)
		epoch := s.epoch
		s.mu.Unlock()

		res, err := s.reconciler.Apply(s.ctx, save, remote)

		s.mu.Lock()
		if epoch == s.epoch {
			s.applyResultLocked(save, res, err)
		}
		if s.onSave != nil {
			s.mu.Unlock()
			s.onSave(save, res, err)
			s.mu.Lock()
		}
	}
}

// pendingSaveLocked reads the cell behind key as it is now. The stored value
// is normalized on the way, so a timer-fired save commits the cell.
func (s *Store) pendingSaveLocked(key string) (reconcile.PendingSave, bool) {
	rowID, date := splitKey(key)
	i := s.rowIndexLocked(rowID)
	if i < 0 {
		return reconcile.PendingSave{}, false
	}
	row := &s.rows[i]
	value := timecalc.NormalizeDuration(row.WeekEntries[date].Duration)
	if value == "" {
		delete(row.WeekEntries, date)
	} else {
		row.WeekEntries[date] = model.DayCell{Duration: value}
	}
	return reconcile.PendingSave{
		RowID:       row.ID,
		Date:        date,
		Duration:    value,
		IsNewRow:    row.IsNew,
		ProjectID:   row.ProjectID,
		Description: row.Description,
		EntryID:     row.EntryIDs[date],
		CompanyID:   s.company,
		UserID:      s.user,
	}, true
}

func (s *Store) applyResultLocked(save reconcile.PendingSave, res reconcile.Result, err error) {
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) && save.EntryID != "" {
			// The bound entry is gone remotely; the next save creates afresh.
			s.unbindLocked(save.RowID, save.Date, save.EntryID)
		}
		return
	}
	s.remote = reconcile.Merge(s.remote, res)

	i := s.rowIndexLocked(save.RowID)
	if i < 0 {
		return
	}
	row := &s.rows[i]
	switch res.Action {
	case reconcile.ActionCreate, reconcile.ActionUpdate:
		row.EntryIDs[save.Date] = res.Entry.ID
		row.Status = res.Entry.Status
		row.IsNew = false
	case reconcile.ActionDelete:
		delete(row.EntryIDs, save.Date)
	}
}

func (s *Store) unbindLocked(rowID, date, entryID string) {
	if i := s.rowIndexLocked(rowID); i >= 0 && s.rows[i].EntryIDs[date] == entryID {
		delete(s.rows[i].EntryIDs, date)
	}
	kept := s.remote[:0]
	for _, e := range s.remote {
		if e.ID != entryID {
			kept = append(kept, e)
		}
	}
	s.remote = kept
}

// dropRowLocked cancels the timers and pending saves of one row.
func (s *Store) dropRowLocked(id string) {
	s.timers.CancelMatching(func(key string) bool {
		return key == id || strings.HasPrefix(key, id+"|")
	})
	for key := range s.pending {
		if rowID, _ := splitKey(key); rowID == id {
			delete(s.pending, key)
			metrics.PendingSavesDroppedTotal.Inc()
		}
	}
}

// entriesForRowLocked returns the IDs of the persisted entries a row maps to:
// bound cells first, then populated unbound cells with an exact match.
func (s *Store) entriesForRowLocked(row model.GridRow) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, date := range s.days {
		id := row.EntryIDs[date]
		if id == "" && row.WeekEntries[date].Duration != "" {
			save := reconcile.PendingSave{Date: date, ProjectID: row.ProjectID, Description: row.Description}
			if m := reconcile.Match(save, s.remote); m != nil {
				id = m.ID
			}
		}
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// ClearRow deletes every persisted entry of the row and resets it to an empty
// new row. It reports false when the user declined.
func (s *Store) ClearRow(ctx context.Context, id string) (bool, error) {
	return s.deleteRow(ctx, id, "Clear all hours in this row?", false)
}

// RemoveRow deletes every persisted entry of the row and drops the row. It
// reports false when the user declined.
func (s *Store) RemoveRow(ctx context.Context, id string) (bool, error) {
	return s.deleteRow(ctx, id, "Remove this row and delete its entries?", true)
}

func (s *Store) deleteRow(ctx context.Context, id, prompt string, remove bool) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	if s.rowIndexLocked(id) < 0 {
		s.mu.Unlock()
		return false, fmt.Errorf("row %s: %w", id, ErrRowNotFound)
	}
	s.mu.Unlock()

	ok, err := s.confirmer.Confirm(ctx, prompt)
	if err != nil {
		return false, fmt.Errorf("confirm: %w", err)
	}
	if !ok {
		return false, nil
	}

	s.mu.Lock()
	i := s.rowIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false, fmt.Errorf("row %s: %w", id, ErrRowNotFound)
	}
	s.dropRowLocked(id)
	ids := s.entriesForRowLocked(s.rows[i])
	s.mu.Unlock()

	var errs []error
	deleted := make(map[string]bool, len(ids))
	for _, entryID := range ids {
		if err := s.reconciler.DeleteEntry(ctx, entryID); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted[entryID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]model.TimeEntry, 0, len(s.remote))
	for _, e := range s.remote {
		if !deleted[e.ID] {
			kept = append(kept, e)
		}
	}
	s.remote = kept

	// Local state is reset even when some deletes failed.
	if i := s.rowIndexLocked(id); i >= 0 {
		if remove {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
		} else {
			s.rows[i] = model.GridRow{
				ID:          id,
				WeekEntries: make(map[string]model.DayCell),
				EntryIDs:    make(map[string]string),
				Status:      model.StatusDraft,
				IsNew:       true,
			}
		}
	}
	return true, errors.Join(errs...)
}

// SetIncludeSaturday shows or hides Saturday.
func (s *Store) SetIncludeSaturday(on bool) {
	s.setWeekend(time.Saturday, on)
}

// SetIncludeSunday shows or hides Sunday.
func (s *Store) SetIncludeSunday(on bool) {
	s.setWeekend(time.Sunday, on)
}

// setWeekend hides or shows wd. Hiding clears that day's cell in every row of
// the displayed week and drops its timers and pending saves; nothing is
// deleted remotely.
func (s *Store) setWeekend(wd time.Weekday, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wd == time.Saturday {
		s.saturday = on
	} else {
		s.sunday = on
	}
	if on {
		return
	}

	var date string
	for _, d := range s.days {
		if timecalc.IsWeekday(d, wd) {
			date = d
		}
	}
	suffix := "|" + date
	s.timers.CancelMatching(func(key string) bool { return strings.HasSuffix(key, suffix) })
	for key := range s.pending {
		if strings.HasSuffix(key, suffix) {
			delete(s.pending, key)
			metrics.PendingSavesDroppedTotal.Inc()
		}
	}
	for i := range s.rows {
		delete(s.rows[i].WeekEntries, date)
	}
}

// Rows returns a deep copy of the rows.
func (s *Store) Rows() []model.GridRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.GridRow, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.Clone()
	}
	return out
}

// Row returns a copy of the row with id.
func (s *Store) Row(id string) (model.GridRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.rowIndexLocked(id)
	if i < 0 {
		return model.GridRow{}, fmt.Errorf("row %s: %w", id, ErrRowNotFound)
	}
	return s.rows[i].Clone(), nil
}

// Remote returns a copy of the cached remote entry list.
func (s *Store) Remote() []model.TimeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TimeEntry, len(s.remote))
	copy(out, s.remote)
	return out
}

// Days returns the visible dates of the displayed week, Monday first.
func (s *Store) Days() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	visible := s.visibleLocked()
	out := make([]string, 0, len(s.days))
	for _, d := range s.days {
		if visible[d] {
			out = append(out, d)
		}
	}
	return out
}

// Week returns the Monday of the displayed week.
func (s *Store) Week() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.week
}

// CompanyID returns the selected company.
func (s *Store) CompanyID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.company
}

// Pending reports the number of armed timers plus saves not yet started.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers.Len() + len(s.pending)
}

// Wait blocks until no save is running.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close cancels every timer and in-flight call and waits for the save
// workers to return. The store is unusable afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.timers.Stop()
	s.pending = make(map[string]bool)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
