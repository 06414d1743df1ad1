package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/timesheet-grid/internal/grid"
	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/reconcile"
	"github.com/Tiliavir/timesheet-grid/internal/storage"
	"github.com/Tiliavir/timesheet-grid/internal/summary"
	"github.com/Tiliavir/timesheet-grid/internal/timecalc"
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Edit the week interactively",
	Long: `grid opens the selected week as rows of (project, description) with one
column per day. Type "help" at the prompt for the commands.`,
	Args: cobra.NoArgs,
	RunE: runGrid,
}

func runGrid(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	from, _, err := selectedWeek()
	if err != nil {
		return err
	}
	set, err := openBackend(ctx, cfg.Backend)
	if err != nil {
		exitStorage(err)
	}
	defer set.close()

	out := &syncWriter{w: cmd.OutOrStdout()}
	in := bufio.NewScanner(cmd.InOrStdin())

	store := grid.New(grid.Options{
		Backend:         set.backend,
		Confirmer:       newConfirmer(in, out, cfg.Grid.ConfirmDeletesTTY, stdinIsTerminal()),
		Logger:          logger,
		CompanyID:       cfg.Grid.CompanyID,
		UserID:          cfg.Grid.UserID,
		Week:            from,
		RowDelay:        cfg.Grid.RowDelay(),
		CellDelay:       cfg.Grid.CellDelay(),
		IncludeSaturday: cfg.Grid.IncludeSaturday,
		IncludeSunday:   cfg.Grid.IncludeSunday,
		OnSave:          reportSaveErrors(out),
	})
	defer store.Close()

	if err := store.Load(ctx); err != nil {
		exitStorage(err)
	}

	s := &session{ctx: ctx, store: store, directory: set.directory, in: in, out: out}
	s.show()
	if err := s.run(); err != nil {
		return err
	}
	s.flush(cfg.Grid.RowDelay() + cfg.Grid.CellDelay() + time.Second)
	return nil
}

// reportSaveErrors prints failed background saves; the grid keeps the local
// value either way.
func reportSaveErrors(out io.Writer) grid.SaveHook {
	return func(save reconcile.PendingSave, res reconcile.Result, err error) {
		if err != nil {
			fmt.Fprintf(out, "\nsave failed for %s: %v\n", save.Date, err)
		}
	}
}

// syncWriter serializes writes from the REPL and the save workers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

type session struct {
	ctx       context.Context
	store     *grid.Store
	directory storage.Directory
	in        *bufio.Scanner
	out       io.Writer
}

const gridHelp = `Commands:
  show                          print the grid
  add                           add an empty row
  set <row> project <id>        set the row's project
  set <row> description <text>  set the row's description
  type <row> <day> <value>      type into a cell (saved after a pause)
  commit <row> <day> [value]    commit a cell and save it now
  clear <row>                   delete the row's entries and empty it
  remove <row>                  delete the row's entries and drop it
  sat on|off, sun on|off        show or hide the weekend days
  week next|prev|<date>         switch week
  company <id>                  switch company
  projects                      list the company's projects
  refresh                       refetch saved entries, keeping unsaved edits
  reload                        rebuild the rows from the backend
  quit                          save pending edits and exit

<row> is the row number from "show"; <day> is mon..sun or YYYY-MM-DD.`

// run reads commands until quit, EOF or cancellation.
func (s *session) run() error {
	for {
		fmt.Fprint(s.out, "> ")
		if !s.in.Scan() {
			fmt.Fprintln(s.out)
			return s.in.Err()
		}
		if s.ctx.Err() != nil {
			return nil
		}
		quit, err := s.exec(strings.TrimSpace(s.in.Text()))
		if err != nil {
			fmt.Fprintln(s.out, "Error:", err)
		}
		if quit {
			return nil
		}
	}
}

func (s *session) exec(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		fmt.Fprintln(s.out, gridHelp)
	case "show", "ls":
		s.show()
	case "add":
		id := s.store.AddRow()
		fmt.Fprintf(s.out, "Added row %d.\n", s.rowNumber(id))
	case "set":
		if len(args) < 2 {
			return false, errors.New("usage: set <row> project|description <value>")
		}
		id, err := s.resolveRow(args[0])
		if err != nil {
			return false, err
		}
		value := restOf(line, 3)
		return false, s.store.UpdateRow(id, strings.ToLower(args[1]), value)
	case "type", "commit":
		final := cmd == "commit"
		if len(args) < 2 || (!final && len(args) < 3) {
			return false, fmt.Errorf("usage: %s <row> <day> <value>", cmd)
		}
		id, err := s.resolveRow(args[0])
		if err != nil {
			return false, err
		}
		date, err := s.resolveDay(args[1])
		if err != nil {
			return false, err
		}
		var value string
		if len(args) >= 3 {
			value = args[2]
		} else {
			row, err := s.store.Row(id)
			if err != nil {
				return false, err
			}
			value = row.WeekEntries[date].Duration
		}
		if err := s.store.UpdateDayEntry(id, date, value, final); err != nil {
			return false, err
		}
		if final {
			s.show()
		}
	case "clear", "remove":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: %s <row>", cmd)
		}
		id, err := s.resolveRow(args[0])
		if err != nil {
			return false, err
		}
		var ok bool
		if cmd == "clear" {
			ok, err = s.store.ClearRow(s.ctx, id)
		} else {
			ok, err = s.store.RemoveRow(s.ctx, id)
		}
		if !ok && err == nil {
			fmt.Fprintln(s.out, "Cancelled.")
			return false, nil
		}
		s.show()
		return false, err
	case "sat", "sun":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: %s on|off", cmd)
		}
		on, err := parseOnOff(args[0])
		if err != nil {
			return false, err
		}
		if cmd == "sat" {
			s.store.SetIncludeSaturday(on)
		} else {
			s.store.SetIncludeSunday(on)
		}
		s.show()
	case "week":
		if len(args) != 1 {
			return false, errors.New("usage: week next|prev|<date>")
		}
		target, err := weekTarget(s.store.Week(), args[0])
		if err != nil {
			return false, err
		}
		if err := s.store.SetWeek(s.ctx, target); err != nil {
			return false, err
		}
		s.show()
	case "company":
		if len(args) != 1 {
			return false, errors.New("usage: company <id>")
		}
		if err := s.store.SetCompany(s.ctx, args[0]); err != nil {
			return false, err
		}
		s.show()
	case "projects":
		return false, s.projects()
	case "refresh":
		if err := s.store.Refresh(s.ctx); err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "%d saved entries this week.\n", len(s.store.Remote()))
	case "reload":
		if n := s.store.Pending(); n > 0 {
			return false, fmt.Errorf("%d unsaved change(s); wait for them to save or use refresh", n)
		}
		if err := s.store.Load(s.ctx); err != nil {
			return false, err
		}
		s.show()
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return false, nil
}

// restOf returns line with its first n whitespace-separated fields removed.
func restOf(line string, n int) string {
	rest := strings.TrimSpace(line)
	for i := 0; i < n && rest != ""; i++ {
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return ""
		}
		rest = strings.TrimSpace(rest[idx:])
	}
	return rest
}

func parseOnOff(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on", "yes", "true", "1":
		return true, nil
	case "off", "no", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", v)
}

func weekTarget(current time.Time, arg string) (time.Time, error) {
	switch strings.ToLower(arg) {
	case "next":
		return current.AddDate(0, 0, 7), nil
	case "prev", "previous":
		return current.AddDate(0, 0, -7), nil
	case "this", "now":
		return time.Now(), nil
	}
	return timecalc.ParseDate(arg, time.Local)
}

var weekdayNames = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// resolveDay maps mon..sun or a date to a date of the displayed week.
func (s *session) resolveDay(arg string) (string, error) {
	days := timecalc.WeekDays(s.store.Week())
	lower := strings.ToLower(arg)
	for i, name := range weekdayNames {
		if strings.HasPrefix(lower, name) {
			return days[i], nil
		}
	}
	if _, err := timecalc.ParseDate(arg, time.Local); err != nil {
		return "", fmt.Errorf("unknown day %q", arg)
	}
	return arg, nil
}

// resolveRow accepts a 1-based row number or a row ID prefix.
func (s *session) resolveRow(arg string) (string, error) {
	rows := s.store.Rows()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(rows) {
			return "", fmt.Errorf("row %d: %w", n, grid.ErrRowNotFound)
		}
		return rows[n-1].ID, nil
	}
	for _, r := range rows {
		if strings.HasPrefix(r.ID, arg) {
			return r.ID, nil
		}
	}
	return "", fmt.Errorf("row %s: %w", arg, grid.ErrRowNotFound)
}

func (s *session) rowNumber(id string) int {
	for i, r := range s.store.Rows() {
		if r.ID == id {
			return i + 1
		}
	}
	return 0
}

func (s *session) projects() error {
	if s.directory == nil {
		return errors.New("backend has no project directory")
	}
	projects, err := s.directory.ListProjects(s.ctx, s.store.CompanyID())
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Fprintln(s.out, "No projects.")
		return nil
	}
	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, p.Status)
	}
	return tw.Flush()
}

func (s *session) show() {
	week := s.store.Week()
	fmt.Fprintf(s.out, "%s  company %s\n", timecalc.ISOWeekLabel(week), s.store.CompanyID())
	printGrid(s.out, s.store.Days(), s.store.Rows())
	if n := s.store.Pending(); n > 0 {
		fmt.Fprintf(s.out, "%d unsaved change(s)\n", n)
	}
}

// printGrid renders rows as a table with daily and weekly totals.
func printGrid(w io.Writer, days []string, rows []model.GridRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "#\tProject\tDescription")
	for _, d := range days {
		fmt.Fprintf(tw, "\t%s", dayHeader(d))
	}
	fmt.Fprintln(tw, "\tTotal")

	for i, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s", i+1, orDash(r.ProjectID), orDash(r.Description))
		for _, d := range days {
			fmt.Fprintf(tw, "\t%s", orDash(r.WeekEntries[d].Duration))
		}
		fmt.Fprintf(tw, "\t%s\n", timecalc.FormatHHMM(summary.RowTotal(r)))
	}

	daily := summary.DailyTotals(rows)
	fmt.Fprint(tw, "\tTotal\t")
	for _, d := range days {
		fmt.Fprintf(tw, "\t%s", timecalc.FormatHHMM(daily[d]))
	}
	fmt.Fprintf(tw, "\t%s\n", timecalc.FormatHHMM(summary.WeekTotal(rows)))
	_ = tw.Flush()
}

func dayHeader(date string) string {
	t, err := timecalc.ParseDate(date, time.Local)
	if err != nil {
		return date
	}
	return t.Format("Mon 02")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// flush waits up to max for armed timers and queued saves so edits typed
// just before quitting still reach the backend.
func (s *session) flush(max time.Duration) {
	if s.store.Pending() == 0 {
		s.store.Wait()
		return
	}
	fmt.Fprintf(s.out, "Saving %d pending change(s)...\n", s.store.Pending())
	deadline := time.Now().Add(max)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for s.store.Pending() > 0 && time.Now().Before(deadline) {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
	s.store.Wait()
}
