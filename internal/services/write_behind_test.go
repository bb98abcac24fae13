package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"climate-platform/internal/models"
	"climate-platform/internal/repository"
	"climate-platform/internal/testutil"
	"climate-platform/pkg/logging"
)

// stubRepository records period upserts; gate, when set, blocks each upsert
type stubRepository struct {
	repository.ClimateRepository

	mu         sync.Mutex
	upserts    map[string]int
	requestIDs []string
	gate       chan struct{}
	err        error
}

func (r *stubRepository) UpsertPeriodStats(ctx context.Context, stats []*models.PeriodStat) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upserts == nil {
		r.upserts = make(map[string]int)
	}
	r.requestIDs = append(r.requestIDs, logging.RequestID(ctx))
	if r.err != nil {
		return r.err
	}
	r.upserts[stats[0].StationID] += len(stats)
	return nil
}

func (r *stubRepository) rows(stationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserts[stationID]
}

func closeWriteBehind(t *testing.T, w *WriteBehind) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testutil.DefaultTestTimeout)
	defer cancel()
	require.NoError(t, w.Close(ctx))
}

func sampleStats(stationID string) []*models.PeriodStat {
	return []*models.PeriodStat{
		{StationID: stationID, Year: 2020, Period: models.PeriodAnnual},
		{StationID: stationID, Year: 2020, Period: models.PeriodWinter},
	}
}

func TestWriteBehind_PersistsAndDrainsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	repo := &stubRepository{}
	w := NewWriteBehind(repo, WriteBehindConfig{QueueSize: 8, Workers: 2, TaskTimeout: time.Second}, testutil.NewLogger(), testutil.NewMetrics())

	ctx := logging.WithRequestID(context.Background(), "req-1")
	for _, id := range []string{"A", "B", "C"} {
		require.True(t, w.Enqueue(ctx, id, sampleStats(id)))
	}

	closeWriteBehind(t, w)

	for _, id := range []string{"A", "B", "C"} {
		assert.Equal(t, 2, repo.rows(id))
	}
	assert.Equal(t, []string{"req-1", "req-1", "req-1"}, repo.requestIDs)
}

func TestWriteBehind_FullQueueDropsWithoutBlocking(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	repo := &stubRepository{gate: make(chan struct{})}
	w := NewWriteBehind(repo, WriteBehindConfig{QueueSize: 1, Workers: 1, TaskTimeout: time.Second}, testutil.NewLogger(), testutil.NewMetrics())

	ctx := context.Background()
	require.True(t, w.Enqueue(ctx, "A", sampleStats("A")))

	// wait until the worker holds task A so the queue slot is free again
	require.Eventually(t, func() bool { return len(w.tasks) == 0 }, testutil.DefaultTestTimeout, time.Millisecond)
	require.True(t, w.Enqueue(ctx, "B", sampleStats("B")))

	done := make(chan bool, 1)
	go func() { done <- w.Enqueue(ctx, "C", sampleStats("C")) }()
	select {
	case queued := <-done:
		assert.False(t, queued, "a full queue drops the task")
	case <-time.After(testutil.DefaultTestTimeout):
		t.Fatal("Enqueue blocked on a full queue")
	}

	close(repo.gate)
	closeWriteBehind(t, w)

	assert.Equal(t, 2, repo.rows("A"))
	assert.Equal(t, 2, repo.rows("B"))
	assert.Zero(t, repo.rows("C"))
}

func TestWriteBehind_FailuresAreSwallowed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	repo := &stubRepository{err: errors.New("disk full")}
	w := NewWriteBehind(repo, WriteBehindConfig{QueueSize: 4, Workers: 1}, testutil.NewLogger(), testutil.NewMetrics())

	require.True(t, w.Enqueue(context.Background(), "A", sampleStats("A")))
	closeWriteBehind(t, w)

	assert.Zero(t, repo.rows("A"))
	assert.Len(t, repo.requestIDs, 1)
}

func TestWriteBehind_EnqueueAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w := NewWriteBehind(&stubRepository{}, WriteBehindConfig{QueueSize: 4, Workers: 1}, testutil.NewLogger(), testutil.NewMetrics())
	closeWriteBehind(t, w)
	closeWriteBehind(t, w)

	assert.False(t, w.Enqueue(context.Background(), "A", sampleStats("A")))
	assert.False(t, w.Enqueue(context.Background(), "A", nil))
}

func TestWriteBehind_PersistsIntoStorage(t *testing.T) {
	repo := newSQLiteRepository(t)
	w := NewWriteBehind(repo, WriteBehindConfig{QueueSize: 4, Workers: 1, TaskTimeout: time.Second}, testutil.NewLogger(), testutil.NewMetrics())

	stats := AggregatePeriods("S", []models.DailyObservation{
		{Year: 2020, Month: 1, Element: models.ElementTMAX, ValueTenthsC: 100},
	}, nil)
	require.True(t, w.Enqueue(context.Background(), "S", stats))
	closeWriteBehind(t, w)

	stored, err := repo.GetPeriodStats(context.Background(), repository.PeriodFilter{StationID: "S"})
	require.NoError(t, err)
	assert.Equal(t, stats, stored)
}

func TestWriteBehind_FailureLogCarriesWorkerScope(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewStructuredLogger("climate-test", "test", logging.InfoLevel)
	logger.SetOutput(&buf)

	repo := &stubRepository{err: errors.New("disk full")}
	w := NewWriteBehind(repo, WriteBehindConfig{QueueSize: 1, Workers: 1, TaskTimeout: time.Second}, logger, testutil.NewMetrics())

	require.True(t, w.Enqueue(context.Background(), "A", sampleStats("A")))
	closeWriteBehind(t, w)

	var failure *logging.LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry logging.LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if strings.HasPrefix(entry.Message, "[WRITE_BEHIND_ERROR]") {
			failure = &entry
		}
	}

	require.NotNil(t, failure)
	assert.Equal(t, "write_behind", failure.Fields["component"])
	assert.Equal(t, 0.0, failure.Fields["worker"])
	assert.Equal(t, "A", failure.Fields["station_id"])
}
