package archive

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"climate-platform/internal/models"
)

// Fixed-width layout of a daily record: header followed by 31 day groups
// of value(5) mflag(1) qflag(1) sflag(1).
const (
	dailyHeaderLen = 21
	dailyGroupLen  = 8
	dailyDays      = 31
)

// ParseOptions controls observation filtering
type ParseOptions struct {
	// QualityFilter drops readings carrying a non-blank quality flag
	QualityFilter bool
}

// DefaultParseOptions returns the options used by the service
func DefaultParseOptions() ParseOptions {
	return ParseOptions{QualityFilter: true}
}

func (o ParseOptions) keep(obs models.DailyObservation) bool {
	if obs.IsMissing() {
		return false
	}
	if o.QualityFilter && obs.HasQualityFlag() {
		return false
	}
	return true
}

// ParseDaily reads fixed-width daily records. Every observation is stamped
// with stationID. Records for other elements and unparsable day slots are
// skipped.
func ParseDaily(r io.Reader, stationID string, opts ParseOptions) ([]models.DailyObservation, error) {
	var observations []models.DailyObservation

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < dailyHeaderLen {
			continue
		}

		year, err := strconv.Atoi(line[11:15])
		if err != nil {
			continue
		}
		month, err := strconv.Atoi(line[15:17])
		if err != nil || month < 1 || month > 12 {
			continue
		}
		element, ok := models.ParseElement(line[17:21])
		if !ok {
			continue
		}

		for day := 0; day < dailyDays; day++ {
			base := dailyHeaderLen + day*dailyGroupLen
			if base+5 > len(line) {
				break
			}
			value, err := strconv.Atoi(strings.TrimSpace(line[base : base+5]))
			if err != nil {
				continue
			}
			qflag := ""
			if base+6 < len(line) {
				qflag = line[base+6 : base+7]
			}

			obs := models.DailyObservation{
				StationID:    stationID,
				Year:         year,
				Month:        month,
				Element:      element,
				ValueTenthsC: value,
				QualityFlag:  qflag,
			}
			if opts.keep(obs) {
				observations = append(observations, obs)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read daily archive: %w", err)
	}

	return observations, nil
}

// ParseCompact reads decompressed columnar rows of the form
// ID,YYYYMMDD,ELEMENT,DATA_VALUE,M_FLAG,Q_FLAG,S_FLAG,OBS_TIME.
// A header line and malformed rows are skipped.
func ParseCompact(r io.Reader, stationID string, opts ParseOptions) ([]models.DailyObservation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	var observations []models.DailyObservation
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				continue
			}
			return nil, fmt.Errorf("failed to read compact archive: %w", err)
		}

		obs, ok := compactObservation(record)
		if !ok {
			continue
		}
		obs.StationID = stationID
		if opts.keep(obs) {
			observations = append(observations, obs)
		}
	}

	return observations, nil
}

func compactObservation(record []string) (models.DailyObservation, bool) {
	if len(record) < 4 {
		return models.DailyObservation{}, false
	}

	date := strings.TrimSpace(record[1])
	if len(date) != 8 {
		return models.DailyObservation{}, false
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return models.DailyObservation{}, false
	}
	month, err := strconv.Atoi(date[4:6])
	if err != nil || month < 1 || month > 12 {
		return models.DailyObservation{}, false
	}
	element, ok := models.ParseElement(record[2])
	if !ok {
		return models.DailyObservation{}, false
	}
	value, err := strconv.Atoi(strings.TrimSpace(record[3]))
	if err != nil {
		return models.DailyObservation{}, false
	}

	qflag := ""
	if len(record) > 5 {
		qflag = record[5]
	}

	return models.DailyObservation{
		Year:         year,
		Month:        month,
		Element:      element,
		ValueTenthsC: value,
		QualityFlag:  qflag,
	}, true
}
