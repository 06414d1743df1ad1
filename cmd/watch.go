package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/timesheet-grid/internal/timecalc"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-print the week's report whenever the data files change",
	Long: `watch follows the file backend's data directory and prints the weekly
report again after every change, e.g. while a grid session in another
terminal is saving.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	from, to, err := selectedWeek()
	if err != nil {
		return err
	}
	set, err := openBackend(ctx, cfg.Backend)
	if err != nil {
		exitStorage(err)
	}
	defer set.close()
	if set.files == nil {
		return fmt.Errorf("watch needs the file backend, configured backend is %q", cfg.Backend.Kind)
	}

	out := cmd.OutOrStdout()
	reprint := func() {
		entries, err := set.backend.List(ctx, cfg.Grid.CompanyID, from, to)
		if err != nil {
			logger.Error(ctx, "reload failed", "error", err)
			return
		}
		fmt.Fprintln(out)
		printReport(out, aggregate(cfg.Grid.CompanyID, timecalc.ISOWeekLabel(from), entries, cfg.Grid.DailyTargetHours))
	}

	reprint()
	logger.Info(ctx, "watching for changes", "dir", set.files.Base())
	if err := set.files.Watch(ctx, reprint); err != nil {
		exitStorage(err)
	}
	return nil
}
