package archive

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"climate-platform/internal/models"
)

// ParseStations reads the fixed-width station reference list. Blank lines
// and lines without a usable id or coordinates are skipped.
func ParseStations(r io.Reader) ([]*models.Station, error) {
	var stations []*models.Station

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if station, ok := parseStationLine(line); ok {
			stations = append(stations, station)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read station list: %w", err)
	}

	return stations, nil
}

func parseStationLine(line string) (*models.Station, bool) {
	id := column(line, 0, 11)
	if id == "" {
		return nil, false
	}
	lat, err := strconv.ParseFloat(column(line, 12, 20), 64)
	if err != nil {
		return nil, false
	}
	lon, err := strconv.ParseFloat(column(line, 21, 30), 64)
	if err != nil {
		return nil, false
	}

	station := &models.Station{
		StationID:  id,
		Lat:        lat,
		Lon:        lon,
		State:      column(line, 38, 40),
		Name:       column(line, 41, 71),
		GSNFlag:    column(line, 72, 75),
		HCNCRNFlag: column(line, 76, 79),
		WMOID:      column(line, 80, 85),
	}
	if elev, err := strconv.ParseFloat(column(line, 31, 37), 64); err == nil {
		station.ElevationM = &elev
	}

	return station, true
}

// column returns the trimmed [start, end) slice of line, clipped to its length
func column(line string, start, end int) string {
	if start >= len(line) {
		return ""
	}
	if end > len(line) {
		end = len(line)
	}
	return strings.TrimSpace(line[start:end])
}
