package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climate-platform/internal/archive"
	"climate-platform/internal/models"
	"climate-platform/internal/repository"
	"climate-platform/internal/testutil"
)

// yearlyObservations returns one TMAX and one TMIN reading per month for each year
func yearlyObservations(from, to int) []models.DailyObservation {
	var out []models.DailyObservation
	for y := from; y <= to; y++ {
		for m := 1; m <= 12; m++ {
			out = append(out,
				models.DailyObservation{Year: y, Month: m, Element: models.ElementTMAX, ValueTenthsC: 200},
				models.DailyObservation{Year: y, Month: m, Element: models.ElementTMIN, ValueTenthsC: 100},
			)
		}
	}
	return out
}

func newTemperatureService(t *testing.T, source archive.Source) (*TemperatureService, repository.ClimateRepository, *recordingEnqueuer) {
	t.Helper()
	repo := newSQLiteRepository(t)
	writer := &recordingEnqueuer{}
	svc := NewTemperatureService(repo, source, writer, testutil.NewLogger(), testutil.NewMetrics())
	return svc, repo, writer
}

func TestTemperatureService_EnsureRangeFetchesOnlyGaps(t *testing.T) {
	source := &countingSource{obs: yearlyObservations(1999, 2010)}
	svc, repo, _ := newTemperatureService(t, source)
	ctx := context.Background()

	for _, y := range []int{2000, 2003, 2004} {
		require.NoError(t, repo.UpsertPeriodStats(ctx, []*models.PeriodStat{{StationID: "S", Year: y, Period: models.PeriodAnnual}}))
	}

	result, err := svc.EnsureRange(ctx, "S", &models.YearRange{Start: 2000, End: 2007})
	require.NoError(t, err)

	assert.True(t, result.Imported)
	assert.Equal(t, ModeRange, result.Mode)
	assert.Equal(t, 5, result.MissingYearsCount)
	assert.Equal(t, []models.YearRange{{Start: 2001, End: 2002}, {Start: 2005, End: 2007}}, result.Blocks)
	assert.Equal(t, 2, source.Calls(), "one upstream cycle per block")

	years, err := repo.ExistingAnnualYears(ctx, "S", models.YearRange{Start: 1990, End: 2020})
	require.NoError(t, err)
	assert.Equal(t, []int{2000, 2001, 2002, 2003, 2004, 2005, 2006, 2007}, years)

	// seeded rows outside the blocks are not rewritten
	stats, err := repo.GetPeriodStats(ctx, repository.PeriodFilter{StationID: "S", Years: &models.YearRange{Start: 2003, End: 2003}})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Nil(t, stats[0].AvgTmaxC)
}

func TestTemperatureService_EnsureRangeCacheHit(t *testing.T) {
	source := &countingSource{obs: yearlyObservations(2000, 2002)}
	svc, _, _ := newTemperatureService(t, source)
	ctx := context.Background()

	_, err := svc.EnsureRange(ctx, "S", &models.YearRange{Start: 2000, End: 2002})
	require.NoError(t, err)
	require.Equal(t, 1, source.Calls())

	result, err := svc.EnsureRange(ctx, "S", &models.YearRange{Start: 2000, End: 2002})
	require.NoError(t, err)
	assert.False(t, result.Imported)
	assert.Zero(t, result.MissingYearsCount)
	assert.Empty(t, result.Blocks)
	assert.Equal(t, 1, source.Calls(), "cache hit must not fetch")
}

func TestTemperatureService_EnsureRangeIsIdempotent(t *testing.T) {
	source := &countingSource{obs: yearlyObservations(2010, 2012)}
	svc, repo, _ := newTemperatureService(t, source)
	ctx := context.Background()
	r := &models.YearRange{Start: 2010, End: 2012}

	_, err := svc.EnsureRange(ctx, "S", r)
	require.NoError(t, err)
	first, err := repo.GetPeriodStats(ctx, repository.PeriodFilter{StationID: "S"})
	require.NoError(t, err)

	_, err = svc.EnsureRange(ctx, "S", nil)
	require.NoError(t, err)
	_, err = svc.EnsureRange(ctx, "S", r)
	require.NoError(t, err)

	second, err := repo.GetPeriodStats(ctx, repository.PeriodFilter{StationID: "S", Years: r})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTemperatureService_EnsureRangeFullMode(t *testing.T) {
	source := &countingSource{obs: yearlyObservations(1950, 1952)}
	svc, repo, _ := newTemperatureService(t, source)
	ctx := context.Background()

	result, err := svc.EnsureRange(ctx, "S", nil)
	require.NoError(t, err)
	assert.Equal(t, ModeFull, result.Mode)
	assert.True(t, result.Imported)
	assert.Equal(t, 1, source.Calls())

	years, err := repo.ExistingAnnualYears(ctx, "S", models.YearRange{Start: 1900, End: 2100})
	require.NoError(t, err)
	assert.Equal(t, []int{1950, 1951, 1952}, years)
}

func TestTemperatureService_Validation(t *testing.T) {
	source := &countingSource{}
	svc, _, _ := newTemperatureService(t, source)
	ctx := context.Background()

	tests := []struct {
		name      string
		stationID string
		start     *int
		end       *int
	}{
		{"inverted range", "S", intPtr(2005), intPtr(2001)},
		{"only start", "S", intPtr(2005), nil},
		{"only end", "S", nil, intPtr(2005)},
		{"bad station id", "../S", nil, nil},
		{"overflowing span", "S", intPtr(-(1 << 62)), intPtr(1 << 62)},
		{"span beyond year window", "S", intPtr(0), intPtr(2000000000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetStationTemperatures(ctx, tt.stationID, tt.start, tt.end)
			var vErr *models.ValidationError
			require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
		})
	}
	assert.Zero(t, source.Calls(), "validation happens before any I/O")
}

func TestTemperatureService_RangeLookupReadsBackFromStorage(t *testing.T) {
	source := &countingSource{obs: []models.DailyObservation{
		{Year: 2020, Month: 1, Element: models.ElementTMAX, ValueTenthsC: 100},
		{Year: 2020, Month: 1, Element: models.ElementTMAX, ValueTenthsC: 200},
		{Year: 2020, Month: 12, Element: models.ElementTMIN, ValueTenthsC: -50},
	}}
	svc, _, writer := newTemperatureService(t, source)

	stats, err := svc.GetStationTemperatures(context.Background(), "S", intPtr(2020), intPtr(2020))
	require.NoError(t, err)

	keys := make([]string, 0, len(stats))
	for _, s := range stats {
		keys = append(keys, s.Key())
	}
	assert.Equal(t, []string{"S:2020:annual", "S:2020:winter"}, keys)
	assert.Equal(t, 15.0, *stats[0].AvgTmaxC)
	assert.Equal(t, -5.0, *stats[0].AvgTminC)
	assert.Empty(t, writer.tasks, "range lookups persist synchronously")
}

func TestTemperatureService_FastPathComputesInlineAndEnqueues(t *testing.T) {
	source := &countingSource{obs: yearlyObservations(2001, 2001)}
	svc, repo, writer := newTemperatureService(t, source)
	ctx := context.Background()

	stats, err := svc.GetStationTemperatures(ctx, "S", nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, stats)
	assert.Equal(t, 1, source.Calls())
	assert.Equal(t, stats, writer.tasks["S"])

	stored, err := repo.GetPeriodStats(ctx, repository.PeriodFilter{StationID: "S"})
	require.NoError(t, err)
	assert.Empty(t, stored, "persistence is deferred to the write-behind queue")
}

func TestTemperatureService_FastPathServesStoredRows(t *testing.T) {
	source := &countingSource{obs: yearlyObservations(2001, 2001)}
	svc, repo, writer := newTemperatureService(t, source)
	ctx := context.Background()

	require.NoError(t, repo.UpsertPeriodStats(ctx, []*models.PeriodStat{
		{StationID: "S", Year: 1990, Period: models.PeriodAnnual, AvgTmaxC: floatPtr(12), NTmax: 10},
	}))

	stats, err := svc.GetStationTemperatures(ctx, "S", nil, nil)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1990, stats[0].Year)
	assert.Zero(t, source.Calls())
	assert.Empty(t, writer.tasks)
}

func TestTemperatureService_FetchErrorsPropagate(t *testing.T) {
	notFound := &archive.NotFoundError{StationID: "S", Tier: archive.TierDaily}
	source := &countingSource{err: notFound}
	svc, _, _ := newTemperatureService(t, source)

	_, err := svc.GetStationTemperatures(context.Background(), "S", nil, nil)
	assert.ErrorIs(t, err, notFound)

	_, err = svc.GetStationTemperatures(context.Background(), "S", intPtr(2000), intPtr(2001))
	assert.ErrorIs(t, err, notFound)
}
