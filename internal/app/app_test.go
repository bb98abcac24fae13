package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climate-platform/internal/config"
	"climate-platform/internal/models"
	"climate-platform/internal/services"
	"climate-platform/internal/testutil"
	"climate-platform/pkg/database"
)

const (
	testStation     = "USW00000001"
	testCompactBase = "https://archive.test/csv.gz/by_station"
	testDailyBase   = "https://archive.test/ghcn/daily/all"
	testStationsURL = "https://archive.test/ghcnd-stations.txt"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{AutoMigrate: true},
		Database: config.DatabaseConfig{
			Driver:       database.DriverSQLite,
			Path:         filepath.Join(t.TempDir(), "climate.db"),
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		Archive: config.ArchiveConfig{
			CompactBaseURL:   testCompactBase,
			DailyBaseURL:     testDailyBase,
			CacheDir:         t.TempDir(),
			Timeout:          time.Second,
			MaxRetries:       1,
			RetryInterval:    time.Millisecond,
			MaxRetryInterval: time.Millisecond,
			QualityFilter:    true,
		},
		Stations: config.StationsConfig{
			PrimaryURL: testStationsURL,
			BatchSize:  100,
		},
		WriteBehind: config.WriteBehindConfig{QueueSize: 4, Workers: 1, TaskTimeout: time.Second},
		Search:      config.SearchConfig{MemoTTL: time.Minute},
	}
}

// dailyRecord renders one fixed-width month; days beyond values are missing
func dailyRecord(stationID string, year, month int, element string, values ...int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-11s%04d%02d%-4s", stationID, year, month, element)
	for i := 0; i < 31; i++ {
		v := -9999
		if i < len(values) {
			v = values[i]
		}
		fmt.Fprintf(&b, "%5d   ", v)
	}
	return b.String()
}

func newTestApp(t *testing.T) (*App, *mux.Router) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	transport.RegisterNoResponder(httpmock.NewStringResponder(http.StatusNotFound, ""))
	transport.RegisterResponder(http.MethodGet, testStationsURL, httpmock.NewStringResponder(http.StatusOK,
		fmt.Sprintf("%-11s %8.4f %9.4f %6.1f %-2s %-30s\n", testStation, 40.0, -74.0, 10.0, "NY", "TEST STATION")))
	transport.RegisterResponder(http.MethodGet, testCompactBase+"/"+testStation+".csv.gz",
		httpmock.NewStringResponder(http.StatusNotFound, ""))
	transport.RegisterResponder(http.MethodGet, testDailyBase+"/"+testStation+".dly",
		httpmock.NewStringResponder(http.StatusOK, strings.Join([]string{
			dailyRecord(testStation, 2020, 1, "TMAX", 100, 200),
			dailyRecord(testStation, 2020, 2, "TMAX", -9999),
		}, "\n")+"\n"))

	ctx, cancel := context.WithTimeout(context.Background(), testutil.DefaultTestTimeout)
	defer cancel()

	a, err := New(ctx, testConfig(t), &http.Client{Transport: transport}, testutil.NewLogger(), testutil.NewMetrics())
	if err != nil && strings.Contains(err.Error(), "failed to open database") {
		t.Skipf("sqlite database not available: %v", err)
	}
	require.NoError(t, err)
	t.Cleanup(func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), testutil.DefaultTestTimeout)
		defer closeCancel()
		assert.NoError(t, a.Close(closeCtx))
	})

	return a, a.Router()
}

func serve(router http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestApp_EndToEnd(t *testing.T) {
	a, router := newTestApp(t)

	rec := serve(router, "/api/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), testutil.DefaultTestTimeout)
	defer cancel()
	a.Readiness.Run(ctx, a.StationImport)

	rec = serve(router, "/api/ready")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ready services.ReadinessStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.True(t, ready.Ready)
	require.NotNil(t, ready.Info)
	assert.Equal(t, 1, ready.Info.StationsCount)

	rec = serve(router, "/api/stations/search?lat=40.01&lon=-74.01&radius_km=10")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var matches []services.StationMatch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, testStation, matches[0].StationID)
	assert.Equal(t, "TEST STATION", matches[0].Name)

	rec = serve(router, "/api/stations/"+testStation+"/temperatures?start_year=2020&end_year=2020")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats []*models.PeriodStat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))

	var annual *models.PeriodStat
	for _, s := range stats {
		if s.Period == models.PeriodAnnual {
			annual = s
		}
	}
	require.NotNil(t, annual)
	assert.Equal(t, 2020, annual.Year)
	require.NotNil(t, annual.AvgTmaxC)
	assert.InDelta(t, 15.0, *annual.AvgTmaxC, 1e-9)
	assert.Equal(t, 2, annual.NTmax)
	assert.Nil(t, annual.AvgTminC)
	assert.Equal(t, 0, annual.NTmin)

	// annual row persisted for the range cache
	existing, err := a.Repo.ExistingAnnualYears(ctx, testStation, models.YearRange{Start: 2020, End: 2020})
	require.NoError(t, err)
	assert.Equal(t, []int{2020}, existing)
}

func TestApp_UnknownStation(t *testing.T) {
	_, router := newTestApp(t)

	rec := serve(router, "/api/stations/XXX00000000/temperatures?start_year=2020&end_year=2020")

	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}
