package archive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climate-platform/internal/models"
)

func TestParseDaily(t *testing.T) {
	input := strings.Join([]string{
		dailyLine("USW00094728", 2020, 1, "TMAX", day{value: 100}, day{value: 200}, day{value: 50, qflag: "I"}),
		dailyLine("USW00094728", 2020, 1, "PRCP", day{value: 12}),
		dailyLine("USW00094728", 2020, 2, "TMIN", day{value: -9999}, day{value: -35}),
		"short line",
		"",
	}, "\n")

	tests := []struct {
		name        string
		opts        ParseOptions
		checkValues func(t *testing.T, obs []models.DailyObservation)
	}{
		{
			name: "quality filter on",
			opts: DefaultParseOptions(),
			checkValues: func(t *testing.T, obs []models.DailyObservation) {
				require.Len(t, obs, 3)
				assert.Equal(t, models.DailyObservation{
					StationID: "REQUESTED", Year: 2020, Month: 1, Element: models.ElementTMAX, ValueTenthsC: 100, QualityFlag: " ",
				}, obs[0])
				assert.Equal(t, 200, obs[1].ValueTenthsC)
				assert.Equal(t, models.ElementTMIN, obs[2].Element)
				assert.Equal(t, -35, obs[2].ValueTenthsC)
				assert.Equal(t, 2, obs[2].Month)
			},
		},
		{
			name: "quality filter off keeps flagged readings",
			opts: ParseOptions{QualityFilter: false},
			checkValues: func(t *testing.T, obs []models.DailyObservation) {
				require.Len(t, obs, 4)
				assert.Equal(t, 50, obs[2].ValueTenthsC)
				assert.Equal(t, "I", obs[2].QualityFlag)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := ParseDaily(strings.NewReader(input), "REQUESTED", tt.opts)
			require.NoError(t, err)
			for _, o := range obs {
				assert.Equal(t, "REQUESTED", o.StationID)
			}
			tt.checkValues(t, obs)
		})
	}
}

func TestParseDaily_SkipsUnparsableSlotsAndTruncatedLines(t *testing.T) {
	line := dailyLine("USW00094728", 2021, 3, "TMAX", day{value: 10}, day{value: 20})
	// corrupt the first slot and cut the line inside the third group
	corrupted := line[:21] + "  x1a" + line[26:]
	corrupted = corrupted[:21+2*8+3]

	obs, err := ParseDaily(strings.NewReader(corrupted), "USW00094728", DefaultParseOptions())
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 20, obs[0].ValueTenthsC)
}

func TestParseCompact(t *testing.T) {
	input := strings.Join([]string{
		"ID,DATE,ELEMENT,DATA_VALUE,M_FLAG,Q_FLAG,S_FLAG,OBS_TIME",
		"USW00094728,20200101,TMAX,100,,,W,",
		"USW00094728,20200102,TMAX,200,,,W,",
		"USW00094728,20200103,TMAX,-9999,,,W,",
		"USW00094728,20200104,TMAX,300,,X,W,",
		"USW00094728,20200105,PRCP,5,,,W,",
		"USW00094728,2020011,TMIN,5,,,W,",
		"USW00094728,20201301,TMIN,5,,,W,",
		"USW00094728,20201201,TMIN,abc,,,W,",
		"USW00094728,20201231,TMIN,-12,,,W,0700",
		"short,row",
	}, "\n")

	obs, err := ParseCompact(strings.NewReader(input), "REQUESTED", DefaultParseOptions())
	require.NoError(t, err)
	require.Len(t, obs, 3)

	assert.Equal(t, models.DailyObservation{
		StationID: "REQUESTED", Year: 2020, Month: 1, Element: models.ElementTMAX, ValueTenthsC: 100,
	}, obs[0])
	assert.Equal(t, 200, obs[1].ValueTenthsC)
	assert.Equal(t, models.DailyObservation{
		StationID: "REQUESTED", Year: 2020, Month: 12, Element: models.ElementTMIN, ValueTenthsC: -12,
	}, obs[2])

	unfiltered, err := ParseCompact(strings.NewReader(input), "REQUESTED", ParseOptions{})
	require.NoError(t, err)
	assert.Len(t, unfiltered, 4)
}

func TestDecodeCompact(t *testing.T) {
	data := gzipBytes(t, "USW00094728,19991215,TMIN,-50,,,W,\n")

	obs, err := DecodeCompact(data, "USW00094728", DefaultParseOptions())
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 1999, obs[0].Year)
	assert.Equal(t, 12, obs[0].Month)

	_, err = DecodeCompact([]byte("not gzip"), "USW00094728", DefaultParseOptions())
	assert.Error(t, err)
}
