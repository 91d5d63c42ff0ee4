package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dport96/ISERN-Graph/internal/database"
	"github.com/dport96/ISERN-Graph/internal/observability"
	"github.com/dport96/ISERN-Graph/internal/pipeline"
	"github.com/dport96/ISERN-Graph/internal/repository"
	httpserver "github.com/dport96/ISERN-Graph/internal/server/http"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `serve starts the REST API: runs are started and inspected over HTTP and
recorded in PostgreSQL. Prometheus metrics are exposed when metrics.enabled is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), global)
		},
	}
}

func serve(parent context.Context, global *globalOptions) error {
	cfg, logger, err := global.load("server")
	if err != nil {
		return err
	}
	logger.Info().Msg("isern-graph server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	if cfg.Database.MigrationAutoRun {
		if err := migrateUp(db, cfg.Database.MigrationPath, logger); err != nil {
			return err
		}
	}

	runRepo := repository.NewPgRunRepository(db, logger)

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	eventOpts, closeEvents, err := eventOptions(cfg.Events, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	svcOpts := append([]pipeline.Option{pipeline.WithRepository(runRepo)}, eventOpts...)
	svc, err := pipeline.FromConfig(cfg, logger, metrics, svcOpts...)
	if err != nil {
		return fmt.Errorf("configure pipeline: %w", err)
	}

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    0, // SSE progress streams outlive any fixed write deadline.
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	opts := []httpserver.Option{httpserver.WithHealthChecker(db)}
	if cfg.Metrics.Enabled {
		httpCfg.MetricsPath = cfg.Metrics.Path
		opts = append(opts, httpserver.WithMetricsHandler(promhttp.Handler()))
	}
	httpSrv := httpserver.NewServer(httpCfg, svc, runRepo, logger, opts...)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	logger.Info().
		Str("http_address", httpCfg.Address).
		Int("members", svc.Roster().Len()).
		Msg("isern-graph is ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("isern-graph shutdown complete")
	return nil
}
