package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"climate-platform/internal/models"
	"climate-platform/internal/repository"
	"climate-platform/pkg/logging"
	"climate-platform/pkg/metrics"
)

// WriteBehindConfig sizes the deferred persistence queue
type WriteBehindConfig struct {
	QueueSize   int
	Workers     int
	TaskTimeout time.Duration
}

// PersistTask is a set of computed rows waiting to be stored
type PersistTask struct {
	StationID string
	RequestID string
	Stats     []*models.PeriodStat
}

// WriteBehind persists computed period rows after the response has been
// produced. Enqueue never blocks; a full queue drops the task.
type WriteBehind struct {
	repo    repository.ClimateRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	timeout time.Duration

	tasks  chan PersistTask
	group  errgroup.Group
	mu     sync.RWMutex
	closed bool
}

// NewWriteBehind starts cfg.Workers consumers on a queue of cfg.QueueSize tasks
func NewWriteBehind(repo repository.ClimateRepository, cfg WriteBehindConfig, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WriteBehind {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}

	w := &WriteBehind{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
		timeout: cfg.TaskTimeout,
		tasks:   make(chan PersistTask, cfg.QueueSize),
	}

	for i := 0; i < cfg.Workers; i++ {
		i := i
		w.group.Go(func() error {
			w.consume(i)
			return nil
		})
	}

	logger.Info(context.Background(), "[WRITE_BEHIND_START] Write-behind workers started", logging.Fields{
		"workers":    cfg.Workers,
		"queue_size": cfg.QueueSize,
	})

	return w
}

// Enqueue schedules rows for persistence and reports whether they were queued
func (w *WriteBehind) Enqueue(ctx context.Context, stationID string, stats []*models.PeriodStat) bool {
	if len(stats) == 0 {
		return false
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.metrics.RecordWriteBehind("dropped")
		w.logger.Warn(ctx, "[WRITE_BEHIND_CLOSED] Dropping task after shutdown", logging.Fields{
			"station_id": stationID,
			"rows":       len(stats),
		})
		return false
	}

	task := PersistTask{
		StationID: stationID,
		RequestID: logging.RequestID(ctx),
		Stats:     stats,
	}

	select {
	case w.tasks <- task:
		w.metrics.WriteBehindQueueDepth.Inc()
		return true
	default:
		w.metrics.RecordWriteBehind("dropped")
		w.logger.Warn(ctx, "[WRITE_BEHIND_FULL] Queue full, dropping task", logging.Fields{
			"station_id": stationID,
			"rows":       len(stats),
			"queue_size": cap(w.tasks),
		})
		return false
	}
}

func (w *WriteBehind) consume(worker int) {
	log := w.logger.With(logging.Fields{"component": "write_behind", "worker": worker})
	for task := range w.tasks {
		w.metrics.WriteBehindQueueDepth.Dec()
		w.persist(log, task)
	}
}

// persist runs detached from the originating request
func (w *WriteBehind) persist(log *logging.ScopedLogger, task PersistTask) {
	ctx := context.Background()
	if task.RequestID != "" {
		ctx = logging.WithRequestID(ctx, task.RequestID)
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.repo.UpsertPeriodStats(ctx, task.Stats); err != nil {
		w.metrics.RecordWriteBehind("failed")
		log.Error(ctx, "[WRITE_BEHIND_ERROR] Failed to persist period rows", logging.Fields{
			"station_id": task.StationID,
			"rows":       len(task.Stats),
		}, err)
		return
	}

	w.metrics.RecordWriteBehind("persisted")
	log.Debug(ctx, "[WRITE_BEHIND_PERSISTED] Period rows persisted", logging.Fields{
		"station_id": task.StationID,
		"rows":       len(task.Stats),
	})
}

// Close stops accepting tasks and waits for queued ones to drain, or for ctx
// to expire.
func (w *WriteBehind) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.tasks)
	}
	w.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- w.group.Wait()
	}()

	select {
	case err := <-done:
		w.logger.Info(ctx, "[WRITE_BEHIND_STOP] Write-behind workers stopped", logging.Fields{})
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
