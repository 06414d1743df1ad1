package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/timesheet-grid/internal/config"
	"github.com/Tiliavir/timesheet-grid/internal/logging"
	"github.com/Tiliavir/timesheet-grid/internal/remote"
	"github.com/Tiliavir/timesheet-grid/internal/storage"
	"github.com/Tiliavir/timesheet-grid/internal/storage/sqlstore"
	"github.com/Tiliavir/timesheet-grid/internal/timecalc"
)

var (
	configPath  string
	verbose     bool
	companyFlag string
	weekFlag    string

	cfg    config.Config
	logger logging.Logger = logging.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "tsg",
	Short: "Timesheet grid – a weekly time-entry grid for the terminal",
	Long: `tsg edits one week of time entries as a grid of project rows and day
columns. Edits are saved in the background after a short pause, against
JSON files in ~/.tsg/, a SQL database or a remote tsg server.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.tsg/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&companyFlag, "company", "", "Company ID (overrides grid.company_id)")
	rootCmd.PersistentFlags().StringVar(&weekFlag, "week", "", "Any date (YYYY-MM-DD) in the week to use (default this week)")

	rootCmd.AddCommand(gridCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if companyFlag != "" {
		c.Grid.CompanyID = companyFlag
	}
	cfg = c
	logger = logging.NewText(os.Stderr, verbose)
	return nil
}

// exitStorage reports a persistence failure and exits with code 2.
func exitStorage(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(2)
}

// selectedWeek returns the Monday and Sunday end of the week chosen with --week.
func selectedWeek() (time.Time, time.Time, error) {
	day := time.Now()
	if weekFlag != "" {
		d, err := timecalc.ParseDate(weekFlag, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		day = d
	}
	from, to := timecalc.WeekRange(day)
	return from, to, nil
}

// backendSet is an opened persistence backend. directory may be nil.
type backendSet struct {
	backend   storage.Backend
	directory storage.Directory
	files     *storage.FileStore
	close     func() error
}

// openBackend opens the backend selected by backend.kind.
func openBackend(ctx context.Context, c config.BackendConfig) (*backendSet, error) {
	switch c.Kind {
	case config.BackendFile, "":
		base := c.DataDir
		if base == "" {
			b, err := storage.BaseDir()
			if err != nil {
				return nil, err
			}
			base = b
		}
		fs := storage.NewFileStore(base)
		return &backendSet{backend: fs, directory: fs, files: fs, close: func() error { return nil }}, nil
	case config.BackendSQLite, config.BackendPostgres:
		dialect := sqlstore.SQLite
		if c.Kind == config.BackendPostgres {
			dialect = sqlstore.Postgres
		}
		st, err := sqlstore.Open(ctx, dialect, c.DSN)
		if err != nil {
			return nil, err
		}
		return &backendSet{backend: st, directory: st, close: st.Close}, nil
	case config.BackendRemote:
		client := remote.NewClient(ctx, c.URL, c.Token)
		if err := client.Health(ctx); err != nil {
			return nil, fmt.Errorf("remote backend %s: %w", c.URL, err)
		}
		return &backendSet{backend: client, directory: client, close: func() error { return nil }}, nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", c.Kind)
	}
}
