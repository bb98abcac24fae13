// Package app wires the configured components together for the server and
// the ingester.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"climate-platform/internal/archive"
	"climate-platform/internal/config"
	"climate-platform/internal/handlers"
	"climate-platform/internal/repository"
	"climate-platform/internal/services"
	"climate-platform/migrations"
	"climate-platform/pkg/database"
	"climate-platform/pkg/logging"
	"climate-platform/pkg/metrics"
)

// App holds the long-lived components of a process
type App struct {
	DB            *database.DB
	Repo          repository.ClimateRepository
	Fetcher       *archive.Fetcher
	Source        archive.Source
	WriteBehind   *services.WriteBehind
	Temperatures  *services.TemperatureService
	Search        *services.SearchService
	StationImport *services.StationImportService
	Warmup        *services.WarmupService
	Readiness     *services.Readiness

	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// New opens the store and builds every component from cfg. A nil client
// lets the fetcher build its own.
func New(ctx context.Context, cfg *config.Config, client *http.Client, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*App, error) {
	db, err := database.Open(cfg.DatabaseSettings(), logger, metricsCollector)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Server.AutoMigrate {
		if err := db.Migrate(ctx, migrations.FS, migrations.Up); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	fetcher, err := archive.NewFetcher(cfg.FetcherSettings(), client, logger, metricsCollector)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	parseOpts := archive.DefaultParseOptions()
	parseOpts.QualityFilter = cfg.Archive.QualityFilter

	source := archive.NewTieredSource(logger, metricsCollector,
		archive.NewCompactSource(fetcher, parseOpts, logger, metricsCollector),
		archive.NewDailySource(fetcher, parseOpts, logger, metricsCollector),
	)

	repo := repository.NewClimateRepository(db, logger, metricsCollector)

	writeBehind := services.NewWriteBehind(repo, services.WriteBehindConfig{
		QueueSize:   cfg.WriteBehind.QueueSize,
		Workers:     cfg.WriteBehind.Workers,
		TaskTimeout: cfg.WriteBehind.TaskTimeout,
	}, logger, metricsCollector)

	temperatures := services.NewTemperatureService(repo, source, writeBehind, logger, metricsCollector)

	return &App{
		DB:           db,
		Repo:         repo,
		Fetcher:      fetcher,
		Source:       source,
		WriteBehind:  writeBehind,
		Temperatures: temperatures,
		Search:       services.NewSearchService(repo, cfg.Search.MemoTTL, logger, metricsCollector),
		StationImport: services.NewStationImportService(repo, fetcher, services.StationImportConfig{
			PrimaryURL:  cfg.Stations.PrimaryURL,
			FallbackURL: cfg.Stations.FallbackURL,
			BatchSize:   cfg.Stations.BatchSize,
		}, logger, metricsCollector),
		Warmup:    services.NewWarmupService(temperatures, logger, metricsCollector),
		Readiness: services.NewReadiness(logger),
		logger:    logger,
		metrics:   metricsCollector,
	}, nil
}

// Router returns the API routes. /metrics is mounted by the caller, which
// owns the registry.
func (a *App) Router() *mux.Router {
	router := mux.NewRouter()
	handlers.NewClimateHandler(a.Search, a.Temperatures, a.Readiness, a.Repo, a.logger, a.metrics).RegisterRoutes(router)
	return router
}

// Close drains the write-behind queue and closes the store
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.WriteBehind.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to drain write-behind queue: %w", err))
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	return errors.Join(errs...)
}
