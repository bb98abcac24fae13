package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/klauspost/compress/gzip"

	"climate-platform/internal/models"
	"climate-platform/pkg/logging"
	"climate-platform/pkg/metrics"
)

// Source yields the filtered daily observations of a station
type Source interface {
	Name() string
	Observations(ctx context.Context, stationID string) ([]models.DailyObservation, error)
}

// archiveSource fetches one tier through the Fetcher and decodes it
type archiveSource struct {
	fetcher *Fetcher
	tier    Tier
	decode  func(data []byte, stationID string, opts ParseOptions) ([]models.DailyObservation, error)
	opts    ParseOptions
	logger  *logging.ScopedLogger
	metrics *metrics.Collector
}

// NewCompactSource reads the gzip-compressed columnar tier
func NewCompactSource(fetcher *Fetcher, opts ParseOptions, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) Source {
	return &archiveSource{
		fetcher: fetcher,
		tier:    TierCompact,
		decode:  DecodeCompact,
		opts:    opts,
		logger:  logger.With(logging.Fields{"tier": TierCompact.String()}),
		metrics: metricsCollector,
	}
}

// NewDailySource reads the fixed-width tier
func NewDailySource(fetcher *Fetcher, opts ParseOptions, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) Source {
	return &archiveSource{
		fetcher: fetcher,
		tier:    TierDaily,
		decode:  DecodeDaily,
		opts:    opts,
		logger:  logger.With(logging.Fields{"tier": TierDaily.String()}),
		metrics: metricsCollector,
	}
}

func (s *archiveSource) Name() string {
	return s.tier.String()
}

// Observations fetches and decodes the archive. An undecodable archive is
// evicted from the local cache and reported as ParseError.
func (s *archiveSource) Observations(ctx context.Context, stationID string) ([]models.DailyObservation, error) {
	data, err := s.fetcher.Fetch(ctx, stationID, s.tier)
	if err != nil {
		return nil, err
	}

	observations, err := s.decode(data, stationID, s.opts)
	if err != nil {
		s.metrics.ArchiveParseErrorsTotal.WithLabelValues(s.tier.String()).Inc()
		s.logger.Warn(ctx, "[ARCHIVE_PARSE_ERROR] Archive could not be decoded, evicting cached copy", logging.Fields{
			"station_id": stationID,
			"error":      err.Error(),
		})
		if evictErr := s.fetcher.Evict(stationID, s.tier); evictErr != nil {
			s.logger.Error(ctx, "[ARCHIVE_EVICT_ERROR] Failed to evict archive", logging.Fields{
				"station_id": stationID,
			}, evictErr)
		}
		return nil, &ParseError{StationID: stationID, Tier: s.tier, Err: err}
	}

	s.metrics.ArchiveObservations.WithLabelValues(s.tier.String()).Add(float64(len(observations)))

	return observations, nil
}

// DecodeCompact gunzips and parses a columnar archive
func DecodeCompact(data []byte, stationID string, opts ParseOptions) ([]models.DailyObservation, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer zr.Close()

	return ParseCompact(zr, stationID, opts)
}

// DecodeDaily parses a fixed-width archive
func DecodeDaily(data []byte, stationID string, opts ParseOptions) ([]models.DailyObservation, error) {
	return ParseDaily(bytes.NewReader(data), stationID, opts)
}

// TieredSource consults its sources in priority order. A source that fails
// or yields nothing hands over to the next one; the last source's error is
// returned, except that an unreadable archive yields an empty result.
type TieredSource struct {
	sources []Source
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewTieredSource creates a composite over sources, highest priority first
func NewTieredSource(logger *logging.StructuredLogger, metricsCollector *metrics.Collector, sources ...Source) *TieredSource {
	return &TieredSource{
		sources: sources,
		logger:  logger,
		metrics: metricsCollector,
	}
}

func (t *TieredSource) Name() string {
	return "tiered"
}

func (t *TieredSource) Observations(ctx context.Context, stationID string) ([]models.DailyObservation, error) {
	if len(t.sources) == 0 {
		return nil, fmt.Errorf("no archive sources configured")
	}

	answered := false
	for i, source := range t.sources {
		last := i == len(t.sources)-1

		observations, err := source.Observations(ctx, stationID)
		if err == nil && len(observations) > 0 {
			return observations, nil
		}
		if err == nil {
			answered = true
		}

		if !last {
			t.metrics.ArchiveFallbacksTotal.Inc()
			fields := logging.Fields{
				"station_id": stationID,
				"source":     source.Name(),
				"next":       t.sources[i+1].Name(),
			}
			if err != nil {
				fields["error"] = err.Error()
			}
			t.logger.Info(ctx, "[ARCHIVE_FALLBACK] Falling back to next archive source", fields)
			continue
		}

		if err == nil {
			return observations, nil
		}

		var pe *ParseError
		var nf *NotFoundError
		switch {
		case errors.As(err, &pe):
			return nil, nil
		case errors.As(err, &nf) && answered:
			return nil, nil
		}
		return nil, err
	}

	return nil, nil
}
