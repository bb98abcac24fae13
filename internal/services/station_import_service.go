package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"climate-platform/internal/archive"
	"climate-platform/internal/repository"
	"climate-platform/pkg/logging"
	"climate-platform/pkg/metrics"
)

// stationsFileName is the cache name of the downloaded station list
const stationsFileName = "ghcnd-stations.txt"

// URLFetcher downloads and caches a single upstream file
type URLFetcher interface {
	FetchURL(ctx context.Context, url, name string) ([]byte, error)
}

// StationImportConfig holds the station list locations
type StationImportConfig struct {
	PrimaryURL  string
	FallbackURL string
	BatchSize   int
}

// StationImportResult reports the outcome of EnsureStations
type StationImportResult struct {
	Imported      bool `json:"imported"`
	StationsCount int  `json:"stations_count"`
}

// StationImportService populates the station reference table
type StationImportService struct {
	repo    repository.ClimateRepository
	fetcher URLFetcher
	cfg     StationImportConfig
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStationImportService creates a new station import service
func NewStationImportService(repo repository.ClimateRepository, fetcher URLFetcher, cfg StationImportConfig, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StationImportService {
	return &StationImportService{
		repo:    repo,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// EnsureStations imports the station list when the table is empty
func (s *StationImportService) EnsureStations(ctx context.Context) (*StationImportResult, error) {
	count, err := s.repo.CountStations(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		s.logger.Info(ctx, "[STATIONS_PRESENT] Station table already populated", logging.Fields{
			"stations_count": count,
		})
		return &StationImportResult{Imported: false, StationsCount: count}, nil
	}

	if _, err := s.Import(ctx); err != nil {
		return nil, err
	}

	count, err = s.repo.CountStations(ctx)
	if err != nil {
		return nil, err
	}
	return &StationImportResult{Imported: true, StationsCount: count}, nil
}

// Import downloads the station list, trying the fallback URL when the
// primary fails, and upserts every parsed row. It returns the rows written.
func (s *StationImportService) Import(ctx context.Context) (int, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[STATIONS_IMPORT_START] Starting station import", logging.Fields{
		"primary_url":  s.cfg.PrimaryURL,
		"fallback_url": s.cfg.FallbackURL,
		"batch_size":   s.cfg.BatchSize,
		"stage":        "DOWNLOAD",
	})

	data, err := s.fetcher.FetchURL(ctx, s.cfg.PrimaryURL, stationsFileName)
	if err != nil {
		if s.cfg.FallbackURL == "" {
			return 0, fmt.Errorf("failed to download station list: %w", err)
		}
		s.logger.Warn(ctx, "[STATIONS_PRIMARY_FAILED] Primary station list failed, trying fallback", logging.Fields{
			"url":   s.cfg.PrimaryURL,
			"error": err.Error(),
		})
		data, err = s.fetcher.FetchURL(ctx, s.cfg.FallbackURL, stationsFileName)
		if err != nil {
			return 0, fmt.Errorf("failed to download station list: %w", err)
		}
	}

	stations, err := archive.ParseStations(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}

	s.logger.Info(ctx, "[STATIONS_PARSED] Station list parsed", logging.Fields{
		"stations": len(stations),
		"stage":    "PARSE",
	})

	written, err := s.repo.UpsertStations(ctx, stations, s.cfg.BatchSize)
	s.metrics.StationsImportedTotal.Add(float64(written))
	if err != nil {
		return written, fmt.Errorf("failed to store stations: %w", err)
	}

	duration := time.Since(startTime)
	s.metrics.StationImportDuration.Observe(duration.Seconds())

	s.logger.Info(ctx, "[STATIONS_IMPORT_COMPLETE] Station import completed", logging.Fields{
		"stations_written": written,
		"duration_seconds": duration.Seconds(),
		"stage":            "COMPLETE",
	})

	return written, nil
}
