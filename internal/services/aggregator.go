package services

import (
	"math"
	"sort"

	"climate-platform/internal/models"
)

type periodKey struct {
	year   int
	period models.Period
}

type accumulator struct {
	sumTmax float64
	nTmax   int
	sumTmin float64
	nTmin   int
}

func (a *accumulator) add(obs models.DailyObservation) {
	switch obs.Element {
	case models.ElementTMAX:
		a.sumTmax += obs.Celsius()
		a.nTmax++
	case models.ElementTMIN:
		a.sumTmin += obs.Celsius()
		a.nTmin++
	}
}

// mean returns nil for an empty or non-finite average so that it encodes as JSON null
func mean(sum float64, n int) *float64 {
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	if math.IsNaN(avg) || math.IsInf(avg, 0) {
		return nil
	}
	return &avg
}

// AggregatePeriods reduces daily observations into annual and seasonal rows
// for stationID, sorted by (year, period).
//
// With a nil window every year is emitted. Otherwise annual rows are limited
// to years inside the window and seasonal rows to season-years inside it, so
// December of the window's last year is left to the following window.
func AggregatePeriods(stationID string, observations []models.DailyObservation, window *models.YearRange) []*models.PeriodStat {
	groups := make(map[periodKey]*accumulator)
	get := func(k periodKey) *accumulator {
		acc, ok := groups[k]
		if !ok {
			acc = &accumulator{}
			groups[k] = acc
		}
		return acc
	}

	for _, obs := range observations {
		if obs.IsMissing() {
			continue
		}
		if obs.Element != models.ElementTMAX && obs.Element != models.ElementTMIN {
			continue
		}

		if window == nil || window.Contains(obs.Year) {
			get(periodKey{year: obs.Year, period: models.PeriodAnnual}).add(obs)
		}

		seasonYear := models.SeasonYear(obs.Year, obs.Month)
		if window == nil || window.Contains(seasonYear) {
			get(periodKey{year: seasonYear, period: models.SeasonForMonth(obs.Month)}).add(obs)
		}
	}

	stats := make([]*models.PeriodStat, 0, len(groups))
	for k, acc := range groups {
		stats = append(stats, &models.PeriodStat{
			StationID: stationID,
			Year:      k.year,
			Period:    k.period,
			AvgTmaxC:  mean(acc.sumTmax, acc.nTmax),
			AvgTminC:  mean(acc.sumTmin, acc.nTmin),
			NTmax:     acc.nTmax,
			NTmin:     acc.nTmin,
		})
	}

	SortPeriodStats(stats)
	return stats
}

// SortPeriodStats orders rows by (year, period)
func SortPeriodStats(stats []*models.PeriodStat) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Year != stats[j].Year {
			return stats[i].Year < stats[j].Year
		}
		return stats[i].Period < stats[j].Period
	})
}

// CompressYears collapses a set of years into maximal runs of consecutive
// years, in ascending order. Duplicates are ignored.
func CompressYears(years []int) []models.YearRange {
	if len(years) == 0 {
		return nil
	}

	sorted := append([]int(nil), years...)
	sort.Ints(sorted)

	blocks := []models.YearRange{{Start: sorted[0], End: sorted[0]}}
	for _, y := range sorted[1:] {
		last := &blocks[len(blocks)-1]
		switch {
		case y <= last.End:
			// duplicate
		case y == last.End+1:
			last.End = y
		default:
			blocks = append(blocks, models.YearRange{Start: y, End: y})
		}
	}
	return blocks
}

// MissingYears returns the years of r not present in existing, ascending
func MissingYears(r models.YearRange, existing []int) []int {
	have := make(map[int]struct{}, len(existing))
	for _, y := range existing {
		have[y] = struct{}{}
	}

	var missing []int
	for _, y := range r.Years() {
		if _, ok := have[y]; !ok {
			missing = append(missing, y)
		}
	}
	return missing
}
