package services

import (
	"context"
	"fmt"

	"climate-platform/internal/archive"
	"climate-platform/internal/models"
	"climate-platform/internal/repository"
	"climate-platform/pkg/logging"
	"climate-platform/pkg/metrics"
)

// Range cache modes
const (
	ModeFull  = "full"
	ModeRange = "range"
)

// Enqueuer accepts rows for deferred persistence
type Enqueuer interface {
	Enqueue(ctx context.Context, stationID string, stats []*models.PeriodStat) bool
}

// EnsureResult describes what a range cache call did. Observability only.
type EnsureResult struct {
	Imported          bool               `json:"imported"`
	Mode              string             `json:"mode"`
	MissingYearsCount int                `json:"missing_years_count"`
	Blocks            []models.YearRange `json:"blocks"`
	RowsWritten       int                `json:"rows_written"`
}

// TemperatureService serves period statistics, filling storage from the
// upstream archives on demand.
type TemperatureService struct {
	repo    repository.ClimateRepository
	source  archive.Source
	writer  Enqueuer
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewTemperatureService creates a new temperature service
func NewTemperatureService(repo repository.ClimateRepository, source archive.Source, writer Enqueuer, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *TemperatureService {
	return &TemperatureService{
		repo:    repo,
		source:  source,
		writer:  writer,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// EnsureRange makes sure period rows exist for stationID. A nil range
// re-imports the whole history; otherwise only the missing years are fetched,
// one upstream cycle per contiguous block.
func (s *TemperatureService) EnsureRange(ctx context.Context, stationID string, years *models.YearRange) (*EnsureResult, error) {
	if err := models.ValidateStationID(stationID); err != nil {
		return nil, err
	}
	if years == nil {
		return s.ensureFull(ctx, stationID)
	}
	if err := years.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.ExistingAnnualYears(ctx, stationID, *years)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached years: %w", err)
	}

	missing := MissingYears(*years, existing)
	result := &EnsureResult{
		Mode:              ModeRange,
		MissingYearsCount: len(missing),
		Blocks:            CompressYears(missing),
	}
	if result.Blocks == nil {
		result.Blocks = []models.YearRange{}
	}

	if len(missing) == 0 {
		s.metrics.RecordCacheRequest(ModeRange, "hit")
		s.logger.Debug(ctx, "[CACHE_HIT] All requested years cached", logging.Fields{
			"station_id": stationID,
			"years":      years.String(),
		})
		return result, nil
	}

	s.metrics.RecordCacheRequest(ModeRange, "miss")
	s.metrics.CacheMissingYears.Observe(float64(len(missing)))

	for _, block := range result.Blocks {
		written, err := s.importBlock(ctx, stationID, block)
		if err != nil {
			return nil, err
		}
		result.Imported = true
		result.RowsWritten += written
	}

	s.logger.Info(ctx, "[CACHE_FILL] Missing years imported", logging.Fields{
		"station_id":    stationID,
		"years":         years.String(),
		"missing_years": len(missing),
		"blocks":        len(result.Blocks),
		"rows_written":  result.RowsWritten,
	})

	return result, nil
}

func (s *TemperatureService) ensureFull(ctx context.Context, stationID string) (*EnsureResult, error) {
	s.metrics.RecordCacheRequest(ModeFull, "miss")

	observations, err := s.source.Observations(ctx, stationID)
	if err != nil {
		return nil, err
	}

	stats := AggregatePeriods(stationID, observations, nil)
	if err := s.repo.UpsertPeriodStats(ctx, stats); err != nil {
		return nil, fmt.Errorf("failed to store period stats: %w", err)
	}

	s.logger.Info(ctx, "[CACHE_FULL_IMPORT] Full history imported", logging.Fields{
		"station_id":   stationID,
		"observations": len(observations),
		"rows_written": len(stats),
	})

	return &EnsureResult{
		Imported:    true,
		Mode:        ModeFull,
		Blocks:      []models.YearRange{},
		RowsWritten: len(stats),
	}, nil
}

// importBlock runs one fetch, aggregate and merge cycle scoped to block
func (s *TemperatureService) importBlock(ctx context.Context, stationID string, block models.YearRange) (int, error) {
	s.metrics.CacheBlocksFetched.Inc()

	observations, err := s.source.Observations(ctx, stationID)
	if err != nil {
		return 0, err
	}

	stats := AggregatePeriods(stationID, observations, &block)
	if err := s.repo.UpsertPeriodStats(ctx, stats); err != nil {
		return 0, fmt.Errorf("failed to store block %s: %w", block, err)
	}

	s.logger.Debug(ctx, "[CACHE_BLOCK] Block imported", logging.Fields{
		"station_id":   stationID,
		"block":        block.String(),
		"rows_written": len(stats),
	})

	return len(stats), nil
}

// GetStationTemperatures returns period rows sorted by (year, period).
//
// With both bounds the range cache is filled first and the rows are read
// back from storage. Without bounds stored rows are returned as they are; if
// there are none the history is computed inline and persisted in the
// background.
func (s *TemperatureService) GetStationTemperatures(ctx context.Context, stationID string, startYear, endYear *int) ([]*models.PeriodStat, error) {
	if err := models.ValidateStationID(stationID); err != nil {
		return nil, err
	}
	years, err := models.NewYearRange(startYear, endYear)
	if err != nil {
		return nil, err
	}

	if years != nil {
		if _, err := s.EnsureRange(ctx, stationID, years); err != nil {
			return nil, err
		}
		stats, err := s.repo.GetPeriodStats(ctx, repository.PeriodFilter{StationID: stationID, Years: years})
		if err != nil {
			return nil, fmt.Errorf("failed to read period stats: %w", err)
		}
		return nonNil(stats), nil
	}

	stats, err := s.repo.GetPeriodStats(ctx, repository.PeriodFilter{StationID: stationID})
	if err != nil {
		return nil, fmt.Errorf("failed to read period stats: %w", err)
	}
	if len(stats) > 0 {
		s.metrics.RecordCacheRequest(ModeFull, "hit")
		return stats, nil
	}

	s.metrics.RecordCacheRequest(ModeFull, "miss")
	observations, err := s.source.Observations(ctx, stationID)
	if err != nil {
		return nil, err
	}

	stats = AggregatePeriods(stationID, observations, nil)
	if len(stats) > 0 && s.writer != nil {
		s.writer.Enqueue(ctx, stationID, stats)
	}

	return stats, nil
}

func nonNil(stats []*models.PeriodStat) []*models.PeriodStat {
	if stats == nil {
		return []*models.PeriodStat{}
	}
	return stats
}
