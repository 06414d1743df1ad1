package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/storage"
	"github.com/Tiliavir/timesheet-grid/internal/summary"
	"github.com/Tiliavir/timesheet-grid/internal/timecalc"
)

var (
	reportFormat string
	reportAll    bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show aggregated time report for the week",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "md", "Output format: md, csv, json")
	reportCmd.Flags().BoolVar(&reportAll, "all-companies", false, "Report every company in the directory")
}

// weekReport is the aggregated view of one company's week.
type weekReport struct {
	CompanyID       string                 `json:"companyId"`
	Week            string                 `json:"week"`
	Projects        []summary.ProjectTotal `json:"projects"`
	Distribution    []summary.Distribution `json:"distribution"`
	Daily           map[string]int         `json:"dailyMinutes"`
	TotalMinutes    int                    `json:"totalMinutes"`
	WorkedDays      int                    `json:"workedDays"`
	AverageHours    float64                `json:"averageHoursPerDay"`
	PercentOfTarget float64                `json:"percentOfTarget"`
}

// companyLister is implemented by backends that can enumerate companies.
type companyLister interface {
	ListCompanies(ctx context.Context) ([]model.Company, error)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	from, to, err := selectedWeek()
	if err != nil {
		return err
	}
	set, err := openBackend(ctx, cfg.Backend)
	if err != nil {
		exitStorage(err)
	}
	defer set.close()

	companies := []string{cfg.Grid.CompanyID}
	if reportAll {
		lister, ok := set.directory.(companyLister)
		if !ok {
			return fmt.Errorf("--all-companies is not supported by the %s backend", cfg.Backend.Kind)
		}
		all, err := lister.ListCompanies(ctx)
		if err != nil {
			exitStorage(err)
		}
		companies = companies[:0]
		for _, c := range all {
			companies = append(companies, c.ID)
		}
	}

	reports, err := buildReports(ctx, set.backend, companies, from, to, cfg.Grid.DailyTargetHours)
	if err != nil {
		exitStorage(err)
	}
	return writeReports(cmd.OutOrStdout(), reports, reportFormat)
}

// buildReports fetches every company's week concurrently.
func buildReports(ctx context.Context, backend storage.Backend, companies []string, from, to time.Time, targetHours float64) ([]weekReport, error) {
	reports := make([]weekReport, len(companies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, companyID := range companies {
		g.Go(func() error {
			entries, err := backend.List(gctx, companyID, from, to)
			if err != nil {
				return fmt.Errorf("company %s: %w", companyID, err)
			}
			reports[i] = aggregate(companyID, timecalc.ISOWeekLabel(from), entries, targetHours)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func aggregate(companyID, week string, entries []model.TimeEntry, targetHours float64) weekReport {
	daily := summary.EntryDailyTotals(entries)
	total := summary.Total(entries)
	worked := summary.WorkedDays(daily)
	target := int(targetHours*60) * worked
	return weekReport{
		CompanyID:       companyID,
		Week:            week,
		Projects:        summary.ByProject(entries),
		Distribution:    summary.ByDistribution(entries),
		Daily:           daily,
		TotalMinutes:    total,
		WorkedDays:      worked,
		AverageHours:    summary.AverageHoursPerDay(total, worked),
		PercentOfTarget: summary.PercentOfTarget(total, target),
	}
}

func writeReports(w io.Writer, reports []weekReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case "csv":
		fmt.Fprintln(w, "company,week,project,duration_minutes")
		for _, r := range reports {
			for _, p := range r.Projects {
				fmt.Fprintf(w, "%s,%s,%s,%d\n", csvEscape(r.CompanyID), r.Week, csvEscape(p.ProjectID), p.Minutes)
			}
		}
		return nil
	case "md", "":
		for i, r := range reports {
			if i > 0 {
				fmt.Fprintln(w)
			}
			printReport(w, r)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want md, csv or json)", format)
	}
}

func printReport(w io.Writer, r weekReport) {
	fmt.Fprintf(w, "Week %s  company %s\n", r.Week, r.CompanyID)
	fmt.Fprintln(w, "--------------------------------")
	for _, p := range r.Projects {
		name := p.ProjectID
		if name == "" {
			name = "(no project)"
		}
		fmt.Fprintf(w, "%-20s%s\n", name, timecalc.FormatMinutes(p.Minutes))
	}
	fmt.Fprintln(w, "--------------------------------")
	fmt.Fprintf(w, "%-20s%s\n", "Total", timecalc.FormatMinutes(r.TotalMinutes))

	days := make([]string, 0, len(r.Daily))
	for d := range r.Daily {
		days = append(days, d)
	}
	sort.Strings(days)
	for _, d := range days {
		fmt.Fprintf(w, "  %s  %s\n", d, timecalc.FormatHHMM(r.Daily[d]))
	}
	if r.WorkedDays > 0 {
		fmt.Fprintf(w, "Average %.1fh/day over %d day(s), %.0f%% of target\n",
			r.AverageHours, r.WorkedDays, r.PercentOfTarget)
	}

	if len(r.Distribution) > 1 || (len(r.Distribution) == 1 && r.Distribution[0].Department != "") {
		fmt.Fprintln(w, "Labor distribution:")
		for _, d := range r.Distribution {
			fmt.Fprintf(w, "  %s/%s/%s  %s\n", orDash(d.Department), orDash(d.Account), orDash(d.Paycode),
				timecalc.FormatMinutes(d.Minutes))
		}
	}
}
