package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"climate-platform/internal/models"
	"climate-platform/pkg/logging"
	"climate-platform/pkg/metrics"
)

// RangeEnsurer fills the range cache for one station
type RangeEnsurer interface {
	EnsureRange(ctx context.Context, stationID string, years *models.YearRange) (*EnsureResult, error)
}

// WarmResult is the outcome for one station
type WarmResult struct {
	StationID string        `json:"station_id"`
	Result    *EnsureResult `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// WarmupService pre-populates period statistics for a list of stations
type WarmupService struct {
	ensurer RangeEnsurer
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWarmupService creates a new warmup service
func NewWarmupService(ensurer RangeEnsurer, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WarmupService {
	return &WarmupService{
		ensurer: ensurer,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Warm runs EnsureRange for every station with at most concurrency calls in
// flight. Per-station failures are reported in the results, not returned.
func (s *WarmupService) Warm(ctx context.Context, stationIDs []string, years *models.YearRange, concurrency int) ([]WarmResult, error) {
	startTime := time.Now()
	if concurrency <= 0 {
		concurrency = 1
	}

	s.logger.Info(ctx, "[WARM_START] Starting cache warmup", logging.Fields{
		"stations":    len(stationIDs),
		"concurrency": concurrency,
		"stage":       "INITIALIZATION",
	})

	results := make([]WarmResult, len(stationIDs))
	var mu sync.Mutex
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, stationID := range stationIDs {
		i, stationID := i, stationID
		g.Go(func() error {
			res, err := s.ensurer.EnsureRange(gctx, stationID, years)
			results[i] = WarmResult{StationID: stationID, Result: res}
			if err != nil {
				results[i].Error = err.Error()
				mu.Lock()
				failed++
				mu.Unlock()
				s.logger.Error(gctx, "[WARM_STATION_ERROR] Failed to warm station", logging.Fields{
					"station_id": stationID,
				}, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}

	s.logger.Info(ctx, "[WARM_COMPLETE] Cache warmup completed", logging.Fields{
		"stations":         len(stationIDs),
		"failed":           failed,
		"duration_seconds": time.Since(startTime).Seconds(),
		"stage":            "COMPLETE",
	})

	return results, nil
}
