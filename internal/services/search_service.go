package services

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"climate-platform/internal/models"
	"climate-platform/internal/repository"
	"climate-platform/pkg/geo"
	"climate-platform/pkg/logging"
	"climate-platform/pkg/metrics"
)

// Search limits
const (
	DefaultSearchLimit = 25
	MaxSearchLimit     = 1000
)

// SearchRequest is a nearest-station query
type SearchRequest struct {
	Lat       float64
	Lon       float64
	RadiusKm  float64
	Limit     int
	StartYear *int
	EndYear   *int
}

// StationMatch is one ranked search hit
type StationMatch struct {
	StationID  string  `json:"station_id"`
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	DistanceKm float64 `json:"distance_km"`
}

// SearchService finds stations near a point
type SearchService struct {
	repo    repository.ClimateRepository
	memo    *cache.Cache
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewSearchService creates a search service. Unfiltered results are memoized
// for memoTTL; a non-positive TTL disables memoization.
func NewSearchService(repo repository.ClimateRepository, memoTTL time.Duration, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SearchService {
	s := &SearchService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
	if memoTTL > 0 {
		s.memo = cache.New(memoTTL, 2*memoTTL)
	}
	return s
}

// ClampLimit bounds a requested result count to [1, MaxSearchLimit]
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

func validateCoordinates(lat, lon, radiusKm float64) error {
	switch {
	case math.IsNaN(lat) || lat < -90 || lat > 90:
		return &models.ValidationError{Field: "lat", Value: fmt.Sprint(lat), Message: "lat must be within [-90, 90]"}
	case math.IsNaN(lon) || lon < -180 || lon > 180:
		return &models.ValidationError{Field: "lon", Value: fmt.Sprint(lon), Message: "lon must be within [-180, 180]"}
	case math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0):
		return &models.ValidationError{Field: "radius_km", Value: fmt.Sprint(radiusKm), Message: "radius_km must be a finite number"}
	}
	return nil
}

// Search returns stations within req.RadiusKm of (req.Lat, req.Lon), ordered
// by distance rounded to metres and then station id. A non-positive radius
// yields no results.
func (s *SearchService) Search(ctx context.Context, req SearchRequest) ([]StationMatch, error) {
	if err := validateCoordinates(req.Lat, req.Lon, req.RadiusKm); err != nil {
		return nil, err
	}
	years, err := models.NewYearRange(req.StartYear, req.EndYear)
	if err != nil {
		return nil, err
	}
	if req.RadiusKm <= 0 {
		return []StationMatch{}, nil
	}
	limit := ClampLimit(req.Limit)

	memoKey := ""
	if s.memo != nil && years == nil {
		memoKey = fmt.Sprintf("%.6f:%.6f:%.6f:%d", req.Lat, req.Lon, req.RadiusKm, limit)
		if cached, ok := s.memo.Get(memoKey); ok {
			return slices.Clone(cached.([]StationMatch)), nil
		}
	}

	box := geo.NewBoundingBox(req.Lat, req.Lon, req.RadiusKm)
	candidates, err := s.repo.FindStationsInBox(ctx, box, years)
	if err != nil {
		return nil, fmt.Errorf("failed to search stations: %w", err)
	}
	s.metrics.SearchCandidates.Observe(float64(len(candidates)))

	matches := rankStations(req.Lat, req.Lon, req.RadiusKm, candidates)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	s.metrics.SearchResults.Observe(float64(len(matches)))

	s.logger.Debug(ctx, "[SEARCH] Stations ranked", logging.Fields{
		"lat":        req.Lat,
		"lon":        req.Lon,
		"radius_km":  req.RadiusKm,
		"candidates": len(candidates),
		"results":    len(matches),
	})

	if memoKey != "" && len(matches) > 0 {
		s.memo.SetDefault(memoKey, slices.Clone(matches))
	}

	return matches, nil
}

// rankStations keeps candidates within radiusKm and sorts them by
// (rounded distance, station id)
func rankStations(lat, lon, radiusKm float64, candidates []*models.Station) []StationMatch {
	matches := make([]StationMatch, 0, len(candidates))
	for _, st := range candidates {
		d := geo.Haversine(lat, lon, st.Lat, st.Lon)
		if d > radiusKm {
			continue
		}
		matches = append(matches, StationMatch{
			StationID:  st.StationID,
			Name:       strings.TrimSpace(st.Name),
			Lat:        st.Lat,
			Lon:        st.Lon,
			DistanceKm: geo.RoundKm(d),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].DistanceKm != matches[j].DistanceKm {
			return matches[i].DistanceKm < matches[j].DistanceKm
		}
		return matches[i].StationID < matches[j].StationID
	})

	return matches
}
