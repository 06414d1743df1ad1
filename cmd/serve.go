package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Tiliavir/timesheet-grid/internal/logging"
	"github.com/Tiliavir/timesheet-grid/internal/metrics"
	"github.com/Tiliavir/timesheet-grid/internal/server"
)

var (
	serveAddr        string
	serveMetricsAddr string
	serveNoMetrics   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the configured backend over HTTP",
	Long: `serve exposes the configured backend as a JSON API that other tsg
instances can use with backend kind "remote". Prometheus metrics are served
on a separate listener.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "API listen address (default server.addr)")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Metrics listen address (default server.metrics_addr)")
	serveCmd.Flags().BoolVar(&serveNoMetrics, "no-metrics", false, "Disable the metrics listener")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.NewJSON(os.Stderr, verbose)

	set, err := openBackend(ctx, cfg.Backend)
	if err != nil {
		exitStorage(err)
	}
	defer set.close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv, err := server.New(server.Config{
		Address:    addr,
		RateLimit:  cfg.Server.RateLimit,
		TrustProxy: cfg.Server.TrustProxy,
	}, set.backend, set.directory, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if !serveNoMetrics {
		metricsAddr := cfg.Server.MetricsAddr
		if serveMetricsAddr != "" {
			metricsAddr = serveMetricsAddr
		}
		ms := metrics.NewServer(metricsAddr)
		g.Go(func() error {
			log.Info(gctx, "metrics listening", "addr", ms.Addr())
			return ms.Start()
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ms.Shutdown(shutdownCtx)
		})
	}

	log.Info(ctx, "tsg serve started", "backend", cfg.Backend.Kind, "addr", srv.Address())
	return g.Wait()
}
