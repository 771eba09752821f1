// Package main is the entry point for the curriculum log wrangler.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fidde/curriculum_log_wrangler/internal/api"
	"github.com/fidde/curriculum_log_wrangler/internal/config"
	"github.com/fidde/curriculum_log_wrangler/internal/export"
	"github.com/fidde/curriculum_log_wrangler/internal/metrics"
	"github.com/fidde/curriculum_log_wrangler/internal/patterns"
	"github.com/fidde/curriculum_log_wrangler/internal/runner"
	"github.com/fidde/curriculum_log_wrangler/internal/source"
	"github.com/fidde/curriculum_log_wrangler/internal/storage"
	"github.com/fidde/curriculum_log_wrangler/internal/storage/dual"
	"github.com/fidde/curriculum_log_wrangler/internal/wrangle"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "wrangler:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := cfg.Logging.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, closeSource, err := openSource(cfg.Source, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	pipeline, err := wrangle.NewPipeline(cfg.Wrangle, logger)
	if err != nil {
		return err
	}

	store, err := openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing storage", "error", err)
		}
	}()

	m := metrics.New()
	opts := []runner.Option{runner.WithMetrics(m), runner.WithLogger(logger)}
	if len(cfg.Export.Formats) > 0 {
		opts = append(opts, runner.WithExporter(export.NewExporter(cfg.Export, logger)))
	}
	r := runner.New(src, pipeline, store, opts...)

	if _, err := r.Run(ctx); err != nil {
		return err
	}

	if !cfg.API.Enabled {
		return nil
	}
	return serve(ctx, cfg, store, r, m, logger)
}

// openSource builds the configured record source behind the snapshot cache.
func openSource(cfg config.SourceConfig, logger *slog.Logger) (source.Source, func(), error) {
	var (
		inner *source.SQLSource
		err   error
	)
	switch cfg.Backend {
	case config.SourceSQLite:
		inner, err = source.NewSQLite(cfg.SQLite.Path, logger)
	default:
		inner, err = source.NewMySQL(cfg.Credentials(), logger)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s source: %w", cfg.Backend, err)
	}

	closeFn := func() {
		if err := inner.Close(); err != nil {
			logger.Error("closing source", "error", err)
		}
	}
	cached := source.NewCached(inner, cfg.CachePath,
		source.WithRefresh(cfg.Refresh),
		source.WithLogger(logger),
	)
	return cached, closeFn, nil
}

// openStorage opens the primary view store, mirrored to the secondary
// backend when one is configured.
func openStorage(ctx context.Context, cfg storage.Config, logger *slog.Logger) (storage.Storage, error) {
	primary, err := storage.NewStorage(ctx, cfg.Backend, cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Secondary == "" {
		return primary, nil
	}

	secondary, err := storage.NewStorage(ctx, cfg.Secondary, cfg, logger)
	if err != nil {
		primary.Close()
		return nil, err
	}
	logger.Info("dual-write enabled", "primary", cfg.Backend, "secondary", cfg.Secondary)
	return dual.New(dual.Config{Primary: primary, Secondary: secondary, Logger: logger}), nil
}

func serve(ctx context.Context, cfg *config.Config, store storage.Storage, r *runner.Runner, m *metrics.Metrics, logger *slog.Logger) error {
	pats := patterns.DefaultPatterns()
	if cfg.API.PatternsFile != "" {
		loaded, err := patterns.LoadPatterns(cfg.API.PatternsFile)
		if err != nil {
			return err
		}
		pats = loaded
	}

	server := api.NewServer(cfg.API.Addr, store,
		api.WithRefresher(r),
		api.WithMetrics(m),
		api.WithPatterns(pats),
		api.WithLogger(logger),
	)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting REST API server", "addr", cfg.API.Addr)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutting down API server", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}
