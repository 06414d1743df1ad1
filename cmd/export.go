package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Tiliavir/timesheet-grid/internal/archive"
	"github.com/Tiliavir/timesheet-grid/internal/model"
	"github.com/Tiliavir/timesheet-grid/internal/timecalc"
)

var (
	exportFormat string
	exportUpload bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the week's time entries",
	Long: `export writes the selected week to stdout. With --upload the file is
stored in the archive bucket from the config instead.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Output format: csv, json, md, yaml")
	exportCmd.Flags().BoolVar(&exportUpload, "upload", false, "Upload to the configured S3 bucket")
}

// exportRow is the flattened entry written by every format.
type exportRow struct {
	Date        string `json:"date" yaml:"date"`
	ProjectID   string `json:"projectId" yaml:"projectId"`
	Description string `json:"description" yaml:"description"`
	Minutes     int    `json:"durationMinutes" yaml:"durationMinutes"`
	Start       string `json:"start,omitempty" yaml:"start,omitempty"`
	End         string `json:"end,omitempty" yaml:"end,omitempty"`
	Status      string `json:"status" yaml:"status"`
	Department  string `json:"department,omitempty" yaml:"department,omitempty"`
	Account     string `json:"account,omitempty" yaml:"account,omitempty"`
	Paycode     string `json:"paycode,omitempty" yaml:"paycode,omitempty"`
}

func toExportRows(entries []model.TimeEntry) []exportRow {
	rows := make([]exportRow, 0, len(entries))
	for _, e := range entries {
		r := exportRow{
			Date:        e.Date,
			ProjectID:   e.ProjectID,
			Description: e.Description,
			Minutes:     e.DurationMinutes,
			Status:      string(e.Status),
			Department:  e.Department,
			Account:     e.Account,
			Paycode:     e.Paycode,
		}
		if !e.StartTime.IsZero() {
			r.Start = e.StartTime.Format("15:04")
		}
		if !e.EndTime.IsZero() {
			r.End = e.EndTime.Format("15:04")
		}
		rows = append(rows, r)
	}
	return rows
}

func runExport(cmd *cobra.Command, args []string) error {
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

	entries, err := set.backend.List(ctx, cfg.Grid.CompanyID, from, to)
	if err != nil {
		exitStorage(err)
	}
	sortEntries(entries)

	var buf bytes.Buffer
	if err := writeExport(&buf, entries, exportFormat); err != nil {
		return err
	}

	if !exportUpload {
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}

	up, err := archive.New(ctx, archive.Config{
		Bucket:    cfg.Archive.Bucket,
		Region:    cfg.Archive.Region,
		Endpoint:  cfg.Archive.Endpoint,
		AccessKey: cfg.Archive.AccessKey,
		SecretKey: cfg.Archive.SecretKey,
		Prefix:    cfg.Archive.Prefix,
	})
	if err != nil {
		return err
	}
	key := up.Key(cfg.Grid.CompanyID, timecalc.ISOWeekLabel(from), exportFormat)
	uri, err := up.Upload(ctx, key, archive.ContentType(exportFormat), buf.Bytes())
	if err != nil {
		exitStorage(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d entries to %s\n", len(entries), uri)
	return nil
}

func writeExport(w io.Writer, entries []model.TimeEntry, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(toExportRows(entries))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(toExportRows(entries)); err != nil {
			return fmt.Errorf("error encoding YAML: %w", err)
		}
		return enc.Close()
	case "md":
		printList(w, entries)
		return nil
	case "csv":
		printCSV(w, entries)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want csv, json, md or yaml)", format)
	}
}

func printCSV(w io.Writer, entries []model.TimeEntry) {
	fmt.Fprintln(w, "date,project,description,start,end,duration_minutes,status,department,account,paycode")
	for _, r := range toExportRows(entries) {
		fmt.Fprintf(w, "%s,%s,%s,%s,%s,%d,%s,%s,%s,%s\n",
			csvEscape(r.Date),
			csvEscape(r.ProjectID),
			csvEscape(r.Description),
			csvEscape(r.Start),
			csvEscape(r.End),
			r.Minutes,
			csvEscape(r.Status),
			csvEscape(r.Department),
			csvEscape(r.Account),
			csvEscape(r.Paycode),
		)
	}
}

// csvEscape wraps a field in quotes if it contains a comma, quote, or newline.
func csvEscape(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	// Escape internal double quotes by doubling them.
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
