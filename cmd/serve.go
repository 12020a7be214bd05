package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pnodedash/handlers"
	"pnodedash/metrics"
	"pnodedash/services"
	"pnodedash/utils"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard API server",
		Long: `Start the HTTP API. The snapshot is reloaded in the background every
polling.refresh_interval_seconds; requests are served from the cache.

Examples:
  pnodedash serve
  pnodedash serve --port 9090 --snapshot data/pnodes.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP port, overrides server.port")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	logger.Info("Configuration",
		zap.String("address", cfg.Address()),
		zap.String("snapshot_path", cfg.Snapshot.Path),
		zap.String("snapshot_url", cfg.Snapshot.URL),
		zap.Bool("redis", cfg.Redis.Enabled))

	m := metrics.NewMetrics()

	geo := utils.NewGeoResolver(utils.GeoResolverConfig{
		DBPath:        cfg.GeoIP.DBPath,
		APIURL:        cfg.GeoIP.APIURL,
		Timeout:       cfg.GeoTimeoutDuration(),
		RatePerMinute: cfg.GeoIP.RatePerMinute,
		CacheTTL:      cfg.GeoCacheTTLDuration(),
		Logger:        logger.Named("geo"),
	})
	defer geo.Close()

	aggregator := a.aggregator(m)
	cache := services.NewCacheService(cfg, aggregator, logger.Named("cache"), m)
	importer := services.NewImportService(cfg.Import.PreviewRows, cfg.Import.MaxErrors, m, logger.Named("import"))
	maps := services.NewMapService(geo, cfg.GeoIP.MaxConcurrency, cfg.GeoTimeoutDuration(), m, logger.Named("map"))

	// Warm the cache before accepting requests
	cache.StartCacheWarmer(ctx)
	defer cache.Stop()

	h := handlers.NewHandler(cfg, cache, aggregator, importer, maps, logger.Named("http"))
	e := handlers.NewServer(h, m)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server running", zap.String("address", cfg.Address()))
		if err := e.Start(cfg.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Graceful shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("Server exited cleanly")
	return nil
}
