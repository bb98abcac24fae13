package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	// API Metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec

	// Archive Metrics
	ArchiveFetchesTotal     *prometheus.CounterVec
	ArchiveFetchDuration    *prometheus.HistogramVec
	ArchiveParseErrorsTotal *prometheus.CounterVec
	ArchiveObservations     *prometheus.CounterVec
	ArchiveFallbacksTotal   prometheus.Counter

	// Range cache Metrics
	CacheRequestsTotal *prometheus.CounterVec
	CacheBlocksFetched prometheus.Counter
	CacheMissingYears  prometheus.Histogram

	// Write-behind Metrics
	WriteBehindQueueDepth prometheus.Gauge
	WriteBehindTasksTotal *prometheus.CounterVec

	// Search Metrics
	SearchCandidates prometheus.Histogram
	SearchResults    prometheus.Histogram

	// Station import Metrics
	StationsImportedTotal prometheus.Counter
	StationImportDuration prometheus.Histogram

	// Database Metrics
	DBQueryDuration  *prometheus.HistogramVec
	DBConnectionPool *prometheus.GaugeVec
	DBErrorsTotal    *prometheus.CounterVec
}

// NewCollector creates a new metrics collector registered against reg.
// Pass prometheus.DefaultRegisterer to expose the metrics on /metrics.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 15.0, 60.0},
			},
			[]string{"endpoint"},
		),

		APIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API errors by type",
			},
			[]string{"error_type", "endpoint"},
		),

		ArchiveFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_fetches_total",
				Help:      "Archive fetches by tier and result (local_hit, downloaded, not_found, error)",
			},
			[]string{"tier", "result"},
		),

		ArchiveFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "archive_fetch_duration_seconds",
				Help:      "Duration of upstream archive downloads in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"tier"},
		),

		ArchiveParseErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_parse_errors_total",
				Help:      "Archives that could not be decoded, by tier",
			},
			[]string{"tier"},
		),

		ArchiveObservations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_observations_total",
				Help:      "Daily observations kept after missing and quality filtering, by tier",
			},
			[]string{"tier"},
		),

		ArchiveFallbacksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_fallbacks_total",
				Help:      "Number of times a lower-priority archive source was consulted",
			},
		),

		CacheRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Range cache requests by mode and result (hit, miss)",
			},
			[]string{"mode", "result"},
		),

		CacheBlocksFetched: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_blocks_fetched_total",
				Help:      "Contiguous year blocks fetched to fill range cache gaps",
			},
		),

		CacheMissingYears: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_missing_years",
				Help:      "Number of missing years per range cache miss",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200},
			},
		),

		WriteBehindQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "write_behind_queue_depth",
				Help:      "Number of pending write-behind persistence tasks",
			},
		),

		WriteBehindTasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "write_behind_tasks_total",
				Help:      "Write-behind tasks by result (persisted, failed, dropped)",
			},
			[]string{"result"},
		),

		SearchCandidates: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_candidates",
				Help:      "Stations returned by the bounding-box prefilter",
				Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
		),

		SearchResults: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_results",
				Help:      "Stations returned after exact distance refinement",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 500, 1000},
			},
		),

		StationsImportedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stations_imported_total",
				Help:      "Station reference rows written by the station import",
			},
		),

		StationImportDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "station_import_duration_seconds",
				Help:      "Duration of the station reference import in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0},
			},
			[]string{"query_type"},
		),

		DBConnectionPool: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"state"}, // "in_use", "idle", "total"
		),

		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors by type",
			},
			[]string{"error_type"},
		),
	}
}

// NewTestCollector returns a collector bound to a private registry so that
// several collectors can coexist in one process.
func NewTestCollector() *Collector {
	return NewCollector("test", prometheus.NewRegistry())
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordAPIRequest increments API request counter
func (c *Collector) RecordAPIRequest(endpoint, method, status string) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordAPIError increments API error counter
func (c *Collector) RecordAPIError(errorType, endpoint string) {
	c.APIErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}

// RecordArchiveFetch increments the archive fetch counter
func (c *Collector) RecordArchiveFetch(tier, result string) {
	c.ArchiveFetchesTotal.WithLabelValues(tier, result).Inc()
}

// RecordCacheRequest increments the range cache counter
func (c *Collector) RecordCacheRequest(mode, result string) {
	c.CacheRequestsTotal.WithLabelValues(mode, result).Inc()
}

// RecordWriteBehind increments the write-behind task counter
func (c *Collector) RecordWriteBehind(result string) {
	c.WriteBehindTasksTotal.WithLabelValues(result).Inc()
}

// RecordDBError increments database error counter
func (c *Collector) RecordDBError(errorType string) {
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}

// UpdateDBConnectionPool updates database connection pool metrics
func (c *Collector) UpdateDBConnectionPool(inUse, idle, total int) {
	c.DBConnectionPool.WithLabelValues("in_use").Set(float64(inUse))
	c.DBConnectionPool.WithLabelValues("idle").Set(float64(idle))
	c.DBConnectionPool.WithLabelValues("total").Set(float64(total))
}
