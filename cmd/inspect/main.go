package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"climate-platform/internal/archive"
	"climate-platform/internal/models"
	"climate-platform/internal/services"
	"climate-platform/pkg/logging"
)

// inspectResult summarizes one local archive
type inspectResult struct {
	StationID    string               `json:"station_id"`
	Tier         string               `json:"tier"`
	Observations int                  `json:"observations"`
	Periods      []*models.PeriodStat `json:"periods"`
}

func main() {
	file := flag.String("file", "", "Local .dly or .csv.gz archive")
	stationID := flag.String("station", "", "Station ID (defaults to the file name)")
	startYear := flag.Int("start-year", 0, "First year to aggregate (requires -end-year)")
	endYear := flag.Int("end-year", 0, "Last year to aggregate (requires -start-year)")
	noQuality := flag.Bool("no-quality-filter", false, "Keep readings that carry a quality flag")
	format := flag.String("format", "table", "Output format: table or json")
	flag.Parse()

	logger := logging.NewStructuredLogger("climate-inspect", "1.0.0", logging.WarnLevel)
	ctx := context.Background()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "-file is required")
		flag.Usage()
		os.Exit(2)
	}

	var window *models.YearRange
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["start-year"] || set["end-year"] {
		var start, end *int
		if set["start-year"] {
			start = startYear
		}
		if set["end-year"] {
			end = endYear
		}
		var err error
		if window, err = models.NewYearRange(start, end); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid year range: %v\n", err)
			os.Exit(2)
		}
	}

	opts := archive.DefaultParseOptions()
	opts.QualityFilter = !*noQuality

	result, err := inspectFile(*file, *stationID, opts, window)
	if err != nil {
		logger.Error(ctx, "[INSPECT_ERROR] Failed to inspect archive", logging.Fields{
			"file": *file,
		}, err)
		os.Exit(1)
	}

	switch *format {
	case "json":
		err = writeJSON(os.Stdout, result)
	default:
		err = writeTable(os.Stdout, result)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		os.Exit(1)
	}
}

// inspectFile decodes a local archive, picking the format from its extension,
// and aggregates it into period rows
func inspectFile(path, stationID string, opts archive.ParseOptions, window *models.YearRange) (*inspectResult, error) {
	name := filepath.Base(path)

	var tier archive.Tier
	switch {
	case strings.HasSuffix(name, archive.TierCompact.Extension()):
		tier = archive.TierCompact
	case strings.HasSuffix(name, archive.TierDaily.Extension()):
		tier = archive.TierDaily
	default:
		return nil, fmt.Errorf("unrecognized archive %q, expected %s or %s",
			name, archive.TierCompact.Extension(), archive.TierDaily.Extension())
	}

	if stationID == "" {
		stationID = strings.TrimSuffix(name, tier.Extension())
	}
	if err := models.ValidateStationID(stationID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	var observations []models.DailyObservation
	if tier == archive.TierCompact {
		observations, err = archive.DecodeCompact(data, stationID, opts)
	} else {
		observations, err = archive.DecodeDaily(data, stationID, opts)
	}
	if err != nil {
		return nil, &archive.ParseError{StationID: stationID, Tier: tier, Err: err}
	}

	return &inspectResult{
		StationID:    stationID,
		Tier:         tier.String(),
		Observations: len(observations),
		Periods:      services.AggregatePeriods(stationID, observations, window),
	}, nil
}

func writeJSON(w io.Writer, result *inspectResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func writeTable(w io.Writer, result *inspectResult) error {
	if _, err := fmt.Fprintf(w, "Station: %s  Tier: %s  Observations: %d\n\n", result.StationID, result.Tier, result.Observations); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%-6s %-8s %10s %10s %7s %7s\n", "YEAR", "PERIOD", "AVG_TMAX", "AVG_TMIN", "N_TMAX", "N_TMIN"); err != nil {
		return err
	}
	for _, p := range result.Periods {
		if _, err := fmt.Fprintf(w, "%-6d %-8s %10s %10s %7d %7d\n", p.Year, p.Period, formatMean(p.AvgTmaxC), formatMean(p.AvgTminC), p.NTmax, p.NTmin); err != nil {
			return err
		}
	}
	return nil
}

func formatMean(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
