package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"climate-platform/internal/models"
	"climate-platform/pkg/database"
	"climate-platform/pkg/geo"
	"climate-platform/pkg/logging"
	"climate-platform/pkg/metrics"
)

// DefaultStationBatchSize is the number of station rows written per statement batch
const DefaultStationBatchSize = 1000

// ClimateRepository provides data access for stations and period statistics
type ClimateRepository interface {
	// Station operations
	UpsertStations(ctx context.Context, stations []*models.Station, batchSize int) (int, error)
	CountStations(ctx context.Context) (int, error)
	GetStation(ctx context.Context, stationID string) (*models.Station, error)
	FindStationsInBox(ctx context.Context, box geo.BoundingBox, years *models.YearRange) ([]*models.Station, error)

	// Period statistics operations
	ExistingAnnualYears(ctx context.Context, stationID string, years models.YearRange) ([]int, error)
	UpsertPeriodStats(ctx context.Context, stats []*models.PeriodStat) error
	GetPeriodStats(ctx context.Context, filter PeriodFilter) ([]*models.PeriodStat, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// PeriodFilter defines filters for querying period statistics
type PeriodFilter struct {
	StationID string
	Years     *models.YearRange
}

// climateRepository implements ClimateRepository
type climateRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewClimateRepository creates a new climate repository
func NewClimateRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) ClimateRepository {
	return &climateRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

const upsertStationSQL = `
	INSERT INTO stations (
		station_id, lat, lon, elevation_m, state, name, gsn_flag, hcn_crn_flag, wmo_id
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (station_id) DO UPDATE SET
		lat = EXCLUDED.lat,
		lon = EXCLUDED.lon,
		elevation_m = EXCLUDED.elevation_m,
		state = EXCLUDED.state,
		name = EXCLUDED.name,
		gsn_flag = EXCLUDED.gsn_flag,
		hcn_crn_flag = EXCLUDED.hcn_crn_flag,
		wmo_id = EXCLUDED.wmo_id
`

// UpsertStations writes station rows in transactions of batchSize rows and
// returns the number of rows written.
func (r *climateRepository) UpsertStations(ctx context.Context, stations []*models.Station, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultStationBatchSize
	}

	written := 0
	for start := 0; start < len(stations); start += batchSize {
		end := start + batchSize
		if end > len(stations) {
			end = len(stations)
		}

		err := r.inTx(ctx, "upsert_stations", upsertStationSQL, func(exec func(args ...interface{}) error) error {
			for _, s := range stations[start:end] {
				if err := exec(s.StationID, s.Lat, s.Lon, s.ElevationM, s.State, s.Name, s.GSNFlag, s.HCNCRNFlag, s.WMOID); err != nil {
					return fmt.Errorf("failed to upsert station %s: %w", s.StationID, err)
				}
			}
			return nil
		})
		if err != nil {
			return written, err
		}

		written += end - start
		r.logger.Debug(ctx, "[REPO_UPSERT_STATIONS] Station batch written", logging.Fields{
			"batch_rows": end - start,
			"written":    written,
			"total":      len(stations),
		})
	}

	return written, nil
}

// CountStations returns the number of rows in the station reference table
func (r *climateRepository) CountStations(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, "count_stations", &count, `SELECT COUNT(*) FROM stations`); err != nil {
		return 0, fmt.Errorf("failed to count stations: %w", err)
	}
	return count, nil
}

// GetStation retrieves a station by ID
func (r *climateRepository) GetStation(ctx context.Context, stationID string) (*models.Station, error) {
	query := `
		SELECT station_id, lat, lon, elevation_m, state, name, gsn_flag, hcn_crn_flag, wmo_id
		FROM stations
		WHERE station_id = ?
	`

	var station models.Station
	err := r.db.GetContext(ctx, "get_station", &station, query, stationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{
			Resource: "station",
			ID:       stationID,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get station: %w", err)
	}

	return &station, nil
}

// FindStationsInBox returns the stations inside box, optionally restricted to
// stations with at least one period row in years. Ordering is left to the caller.
func (r *climateRepository) FindStationsInBox(ctx context.Context, box geo.BoundingBox, years *models.YearRange) ([]*models.Station, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT s.station_id, s.lat, s.lon, s.elevation_m, s.state, s.name, s.gsn_flag, s.hcn_crn_flag, s.wmo_id
		FROM stations s
		WHERE s.lat BETWEEN ? AND ?`)
	args := []interface{}{box.MinLat, box.MaxLat}

	ranges := box.LonRanges()
	lonClauses := make([]string, 0, len(ranges))
	for _, lr := range ranges {
		lonClauses = append(lonClauses, "s.lon BETWEEN ? AND ?")
		args = append(args, lr.Min, lr.Max)
	}
	sb.WriteString("\n\t\t  AND (" + strings.Join(lonClauses, " OR ") + ")")

	if years != nil {
		sb.WriteString(`
		  AND EXISTS (
			SELECT 1 FROM station_temp_period p
			WHERE p.station_id = s.station_id AND p.year BETWEEN ? AND ?
		  )`)
		args = append(args, years.Start, years.End)
	}

	var stations []*models.Station
	if err := r.db.SelectContext(ctx, "find_stations_in_box", &stations, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("failed to find stations in box: %w", err)
	}

	return stations, nil
}

// ExistingAnnualYears returns the years in range that already have an annual row
func (r *climateRepository) ExistingAnnualYears(ctx context.Context, stationID string, years models.YearRange) ([]int, error) {
	query := `
		SELECT DISTINCT year
		FROM station_temp_period
		WHERE station_id = ? AND period = ? AND year BETWEEN ? AND ?
		ORDER BY year
	`

	var existing []int
	err := r.db.SelectContext(ctx, "existing_annual_years", &existing, query,
		stationID, string(models.PeriodAnnual), years.Start, years.End)
	if err != nil {
		return nil, fmt.Errorf("failed to get existing years: %w", err)
	}

	return existing, nil
}

const upsertPeriodStatSQL = `
	INSERT INTO station_temp_period (
		station_id, year, period, avg_tmax_c, avg_tmin_c, n_tmax, n_tmin
	)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (station_id, year, period) DO UPDATE SET
		avg_tmax_c = EXCLUDED.avg_tmax_c,
		avg_tmin_c = EXCLUDED.avg_tmin_c,
		n_tmax = EXCLUDED.n_tmax,
		n_tmin = EXCLUDED.n_tmin
`

// UpsertPeriodStats inserts or replaces period rows in a single transaction.
// Only the given keys are touched.
func (r *climateRepository) UpsertPeriodStats(ctx context.Context, stats []*models.PeriodStat) error {
	if len(stats) == 0 {
		return nil
	}

	timer := time.Now()
	defer func() {
		r.logger.Debug(ctx, "[REPO_UPSERT_PERIODS] Period batch written", logging.Fields{
			"count":       len(stats),
			"duration_ms": time.Since(timer).Milliseconds(),
		})
	}()

	return r.inTx(ctx, "upsert_period_stats", upsertPeriodStatSQL, func(exec func(args ...interface{}) error) error {
		for _, s := range stats {
			if err := exec(s.StationID, s.Year, string(s.Period), s.AvgTmaxC, s.AvgTminC, s.NTmax, s.NTmin); err != nil {
				return fmt.Errorf("failed to upsert period %s: %w", s.Key(), err)
			}
		}
		return nil
	})
}

// GetPeriodStats returns period rows for a station ordered by (year, period)
func (r *climateRepository) GetPeriodStats(ctx context.Context, filter PeriodFilter) ([]*models.PeriodStat, error) {
	query := `
		SELECT station_id, year, period, avg_tmax_c, avg_tmin_c, n_tmax, n_tmin
		FROM station_temp_period
		WHERE station_id = ?
	`
	args := []interface{}{filter.StationID}

	if filter.Years != nil {
		query += " AND year BETWEEN ? AND ?"
		args = append(args, filter.Years.Start, filter.Years.End)
	}
	query += " ORDER BY year, period"

	var stats []*models.PeriodStat
	if err := r.db.SelectContext(ctx, "get_period_stats", &stats, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get period stats: %w", err)
	}

	return stats, nil
}

// HealthCheck performs a repository health check
func (r *climateRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// inTx runs fn with a prepared statement inside one transaction
func (r *climateRepository) inTx(ctx context.Context, queryType, query string, fn func(exec func(args ...interface{}) error) error) error {
	timer := r.metrics.NewTimer(r.metrics.DBQueryDuration.WithLabelValues(queryType))
	defer timer.ObserveDuration()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(query))
	if err != nil {
		r.metrics.RecordDBError("prepare_error")
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	err = fn(func(args ...interface{}) error {
		_, execErr := stmt.ExecContext(ctx, args...)
		return execErr
	})
	if err != nil {
		r.metrics.RecordDBError("exec_error")
		return err
	}

	if err := tx.Commit(); err != nil {
		r.metrics.RecordDBError("commit_error")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
