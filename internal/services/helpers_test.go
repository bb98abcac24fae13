package services

import (
	"context"
	"sync"
	"testing"

	"climate-platform/internal/models"
	"climate-platform/internal/repository"
	"climate-platform/internal/testutil"
)

// countingSource is an archive.Source returning fixed observations
type countingSource struct {
	mu    sync.Mutex
	obs   []models.DailyObservation
	err   error
	calls int
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Observations(ctx context.Context, stationID string) ([]models.DailyObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.DailyObservation, len(s.obs))
	for i, o := range s.obs {
		o.StationID = stationID
		out[i] = o
	}
	return out, nil
}

func (s *countingSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingEnqueuer captures write-behind tasks
type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks map[string][]*models.PeriodStat
}

func (e *recordingEnqueuer) Enqueue(ctx context.Context, stationID string, stats []*models.PeriodStat) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tasks == nil {
		e.tasks = make(map[string][]*models.PeriodStat)
	}
	e.tasks[stationID] = stats
	return true
}

func newSQLiteRepository(t *testing.T) repository.ClimateRepository {
	t.Helper()
	return repository.NewClimateRepository(testutil.NewSQLiteDB(t), testutil.NewLogger(), testutil.NewMetrics())
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
