package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climate-platform/internal/models"
	"climate-platform/internal/testutil"
	"climate-platform/pkg/geo"
)

func floatPtr(v float64) *float64 { return &v }

func newTestRepository(t *testing.T) ClimateRepository {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	return NewClimateRepository(db, testutil.NewLogger(), testutil.NewMetrics())
}

func seedStations(t *testing.T, repo ClimateRepository, stations ...*models.Station) {
	t.Helper()
	n, err := repo.UpsertStations(context.Background(), stations, 2)
	require.NoError(t, err)
	require.Equal(t, len(stations), n)
}

func TestClimateRepository_Stations(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	count, err := repo.CountStations(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	seedStations(t, repo,
		&models.Station{StationID: "A", Lat: 1, Lon: 2, ElevationM: floatPtr(10.5), Name: "ALPHA", State: "NY"},
		&models.Station{StationID: "B", Lat: 3, Lon: 4, Name: "BRAVO"},
		&models.Station{StationID: "C", Lat: 5, Lon: 6, Name: "CHARLIE"},
	)

	count, err = repo.CountStations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	a, err := repo.GetStation(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "ALPHA", a.Name)
	require.NotNil(t, a.ElevationM)
	assert.Equal(t, 10.5, *a.ElevationM)

	b, err := repo.GetStation(ctx, "B")
	require.NoError(t, err)
	assert.Nil(t, b.ElevationM)

	// upsert replaces instead of duplicating
	seedStations(t, repo, &models.Station{StationID: "A", Lat: 1, Lon: 2, Name: "ALPHA RENAMED"})
	count, err = repo.CountStations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	a, err = repo.GetStation(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "ALPHA RENAMED", a.Name)

	_, err = repo.GetStation(ctx, "missing")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.False(t, nf.IsTransient())
}

func TestClimateRepository_FindStationsInBox(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seedStations(t, repo,
		&models.Station{StationID: "IN", Lat: 0.5, Lon: 0.5},
		&models.Station{StationID: "OUT", Lat: 5, Lon: 5},
		&models.Station{StationID: "EAST", Lat: 0, Lon: 179.95},
		&models.Station{StationID: "WEST", Lat: 0, Lon: -179.95},
	)

	stations, err := repo.FindStationsInBox(ctx, geo.BoundingBox{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1}, nil)
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, "IN", stations[0].StationID)

	// box spanning the antimeridian
	stations, err = repo.FindStationsInBox(ctx, geo.BoundingBox{MinLat: -1, MaxLat: 1, MinLon: 179.9, MaxLon: 180.1}, nil)
	require.NoError(t, err)
	ids := make([]string, 0, len(stations))
	for _, s := range stations {
		ids = append(ids, s.StationID)
	}
	assert.ElementsMatch(t, []string{"EAST", "WEST"}, ids)
}

func TestClimateRepository_FindStationsInBoxWithYears(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seedStations(t, repo,
		&models.Station{StationID: "OLD", Lat: 0.1, Lon: 0.1},
		&models.Station{StationID: "NEW", Lat: 0.2, Lon: 0.2},
		&models.Station{StationID: "NONE", Lat: 0.3, Lon: 0.3},
	)
	require.NoError(t, repo.UpsertPeriodStats(ctx, []*models.PeriodStat{
		{StationID: "OLD", Year: 1950, Period: models.PeriodAnnual},
		{StationID: "NEW", Year: 2020, Period: models.PeriodWinter},
	}))

	box := geo.BoundingBox{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1}
	stations, err := repo.FindStationsInBox(ctx, box, &models.YearRange{Start: 2010, End: 2025})
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, "NEW", stations[0].StationID)
}

func TestClimateRepository_PeriodStats(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	rows := []*models.PeriodStat{
		{StationID: "S", Year: 2021, Period: models.PeriodWinter, AvgTmaxC: floatPtr(1.5), NTmax: 3},
		{StationID: "S", Year: 2020, Period: models.PeriodSummer, AvgTmaxC: floatPtr(25), AvgTminC: floatPtr(15), NTmax: 90, NTmin: 90},
		{StationID: "S", Year: 2020, Period: models.PeriodAnnual, AvgTmaxC: floatPtr(15), AvgTminC: floatPtr(5), NTmax: 365, NTmin: 365},
		{StationID: "S", Year: 2022, Period: models.PeriodAnnual, AvgTminC: floatPtr(-2), NTmin: 10},
		{StationID: "OTHER", Year: 2020, Period: models.PeriodAnnual},
	}
	require.NoError(t, repo.UpsertPeriodStats(ctx, rows))
	require.NoError(t, repo.UpsertPeriodStats(ctx, nil))

	got, err := repo.GetPeriodStats(ctx, PeriodFilter{StationID: "S"})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"S:2020:annual", "S:2020:summer", "S:2021:winter", "S:2022:annual"},
		[]string{got[0].Key(), got[1].Key(), got[2].Key(), got[3].Key()})
	assert.Nil(t, got[2].AvgTminC)
	assert.Zero(t, got[2].NTmin)
	assert.Nil(t, got[3].AvgTmaxC)
	require.NotNil(t, got[3].AvgTminC)
	assert.Equal(t, -2.0, *got[3].AvgTminC)

	got, err = repo.GetPeriodStats(ctx, PeriodFilter{StationID: "S", Years: &models.YearRange{Start: 2021, End: 2022}})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	years, err := repo.ExistingAnnualYears(ctx, "S", models.YearRange{Start: 2019, End: 2022})
	require.NoError(t, err)
	assert.Equal(t, []int{2020, 2022}, years)

	// replacing a key keeps a single row with the new values
	require.NoError(t, repo.UpsertPeriodStats(ctx, []*models.PeriodStat{
		{StationID: "S", Year: 2020, Period: models.PeriodAnnual, AvgTmaxC: floatPtr(16), NTmax: 1},
	}))
	got, err = repo.GetPeriodStats(ctx, PeriodFilter{StationID: "S", Years: &models.YearRange{Start: 2020, End: 2020}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 16.0, *got[0].AvgTmaxC)
	assert.Nil(t, got[0].AvgTminC)
	assert.Equal(t, 1, got[0].NTmax)
}

func TestClimateRepository_HealthCheck(t *testing.T) {
	repo := newTestRepository(t)
	assert.NoError(t, repo.HealthCheck(context.Background()))
}
