package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/timecalc"
)

var listToday bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the week's time entries",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listToday, "today", false, "Show only today's entries")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	from, to, err := selectedWeek()
	if err != nil {
		return err
	}
	if listToday {
		now := time.Now()
		from, to = timecalc.StartOfDay(now), timecalc.EndOfDay(now)
	}

	set, err := openBackend(ctx, cfg.Backend)
	if err != nil {
		exitStorage(err)
	}
	defer set.close()

	entries, err := set.backend.List(ctx, cfg.Grid.CompanyID, from, to)
	if err != nil {
		exitStorage(err)
	}

	printList(cmd.OutOrStdout(), entries)
	return nil
}

// sortEntries orders entries by date, then project and description.
func sortEntries(entries []model.TimeEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.ProjectID != b.ProjectID {
			return a.ProjectID < b.ProjectID
		}
		return a.Description < b.Description
	})
}

// printList groups entries by date and prints them.
func printList(w io.Writer, entries []model.TimeEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No entries found.")
		return
	}
	sortEntries(entries)

	var currentDay string
	for _, e := range entries {
		if e.Date != currentDay {
			fmt.Fprintln(w, e.Date)
			currentDay = e.Date
		}
		project := e.ProjectID
		if project == "" {
			project = "(no project)"
		}
		fmt.Fprintf(w, "  %s  %s  %s  [%s]\n",
			timecalc.FormatHHMM(e.DurationMinutes), project, e.Description, e.Status)
	}
}
