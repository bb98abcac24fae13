package models

import (
	"fmt"
	"regexp"
	"strings"
)

// MissingValue is the upstream sentinel for a day without a reading
const MissingValue = -9999

// Station represents a row of the station reference table.
// Loaded once by the station import and read-only afterwards.
type Station struct {
	StationID  string   `json:"station_id" db:"station_id"`
	Lat        float64  `json:"lat" db:"lat"`
	Lon        float64  `json:"lon" db:"lon"`
	ElevationM *float64 `json:"elevation_m" db:"elevation_m"`
	State      string   `json:"state" db:"state"`
	Name       string   `json:"name" db:"name"`
	GSNFlag    string   `json:"gsn_flag" db:"gsn_flag"`
	HCNCRNFlag string   `json:"hcn_crn_flag" db:"hcn_crn_flag"`
	WMOID      string   `json:"wmo_id" db:"wmo_id"`
}

var stationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// ValidateStationID rejects identifiers that cannot name an upstream archive
func ValidateStationID(stationID string) error {
	if !stationIDPattern.MatchString(stationID) {
		return &ValidationError{
			Field:   "station_id",
			Value:   stationID,
			Message: "station_id must be 1-32 letters, digits, '_' or '-'",
		}
	}
	return nil
}

// Element is a measured quantity code
type Element string

const (
	ElementTMAX Element = "TMAX"
	ElementTMIN Element = "TMIN"
)

// ParseElement returns the element for a raw code. Only TMAX and TMIN are
// recognised; everything else reports false.
func ParseElement(code string) (Element, bool) {
	switch Element(strings.TrimSpace(code)) {
	case ElementTMAX:
		return ElementTMAX, true
	case ElementTMIN:
		return ElementTMIN, true
	default:
		return "", false
	}
}

// DailyObservation is a single normalized reading. Never persisted.
type DailyObservation struct {
	StationID    string
	Year         int
	Month        int
	Element      Element
	ValueTenthsC int
	QualityFlag  string
}

// IsMissing reports whether the reading carries the -9999 sentinel
func (o DailyObservation) IsMissing() bool {
	return o.ValueTenthsC == MissingValue
}

// HasQualityFlag reports whether upstream flagged the reading as suspect
func (o DailyObservation) HasQualityFlag() bool {
	return strings.TrimSpace(o.QualityFlag) != ""
}

// Celsius converts the raw tenths-of-a-degree value
func (o DailyObservation) Celsius() float64 {
	return float64(o.ValueTenthsC) / 10.0
}

// Period is an aggregation window
type Period string

const (
	PeriodAnnual Period = "annual"
	PeriodSpring Period = "spring"
	PeriodSummer Period = "summer"
	PeriodAutumn Period = "autumn"
	PeriodWinter Period = "winter"
)

// SeasonForMonth maps a calendar month (1-12) onto its meteorological season
func SeasonForMonth(month int) Period {
	switch month {
	case 3, 4, 5:
		return PeriodSpring
	case 6, 7, 8:
		return PeriodSummer
	case 9, 10, 11:
		return PeriodAutumn
	default:
		return PeriodWinter
	}
}

// SeasonYear returns the year a seasonal bucket is attributed to.
// December belongs to the following year's winter.
func SeasonYear(year, month int) int {
	if month == 12 {
		return year + 1
	}
	return year
}

// PeriodStat holds aggregated temperatures for one (station, year, period) key.
// Averages are nil when no valid readings exist for that element.
type PeriodStat struct {
	StationID string   `json:"station_id" db:"station_id"`
	Year      int      `json:"year" db:"year"`
	Period    Period   `json:"period" db:"period"`
	AvgTmaxC  *float64 `json:"avg_tmax_c" db:"avg_tmax_c"`
	AvgTminC  *float64 `json:"avg_tmin_c" db:"avg_tmin_c"`
	NTmax     int      `json:"n_tmax" db:"n_tmax"`
	NTmin     int      `json:"n_tmin" db:"n_tmin"`
}

// Key returns the storage key of the row
func (p *PeriodStat) Key() string {
	return fmt.Sprintf("%s:%d:%s", p.StationID, p.Year, p.Period)
}

// Accepted calendar years. The archive starts in the 1760s.
const (
	MinYear = 1700
	MaxYear = 2200
)

// YearRange is an inclusive range of calendar years
type YearRange struct {
	Start int `json:"start_year"`
	End   int `json:"end_year"`
}

// NewYearRange builds a range from optional bounds. Both bounds absent
// yields nil; exactly one bound, or start after end, is a ValidationError.
func NewYearRange(start, end *int) (*YearRange, error) {
	if start == nil && end == nil {
		return nil, nil
	}
	if start == nil || end == nil {
		return nil, &ValidationError{
			Field:   "start_year,end_year",
			Message: "start_year and end_year must be provided together",
		}
	}
	r := &YearRange{Start: *start, End: *end}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks that both bounds lie in [MinYear, MaxYear] and that the
// range is not inverted
func (r YearRange) Validate() error {
	for _, b := range []struct {
		field string
		year  int
	}{{"start_year", r.Start}, {"end_year", r.End}} {
		if b.year < MinYear || b.year > MaxYear {
			return &ValidationError{
				Field:   b.field,
				Value:   fmt.Sprintf("%d", b.year),
				Message: fmt.Sprintf("%s must be between %d and %d", b.field, MinYear, MaxYear),
			}
		}
	}
	if r.Start > r.End {
		return &ValidationError{
			Field:   "start_year",
			Value:   fmt.Sprintf("%d>%d", r.Start, r.End),
			Message: "start_year must be <= end_year",
		}
	}
	return nil
}

// Contains reports whether year lies inside the range
func (r YearRange) Contains(year int) bool {
	return year >= r.Start && year <= r.End
}

// Years returns every year of the range in ascending order
func (r YearRange) Years() []int {
	if r.Start > r.End {
		return nil
	}
	years := make([]int, 0, r.End-r.Start+1)
	for y := r.Start; y <= r.End; y++ {
		years = append(years, y)
	}
	return years
}

func (r YearRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// ValidationError represents a rejected input.
// Raised before any I/O is attempted.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
