package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"climate-platform/internal/app"
	"climate-platform/internal/config"
	"climate-platform/internal/models"
	"climate-platform/internal/services"
	"climate-platform/pkg/logging"
	"climate-platform/pkg/metrics"
)

const version = "1.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ingester",
		Short:         "Climate platform batch ingestion",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(stationsCommand(), warmCommand())
	return rootCmd
}

// setup loads configuration and builds the application
func setup(ctx context.Context) (*app.App, *logging.StructuredLogger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.NewStructuredLogger("climate-ingester", version, logging.ParseLevel(cfg.Logging.Level))
	metricsCollector := metrics.NewCollector(cfg.Metrics.Namespace, prometheus.NewRegistry())

	application, err := app.New(ctx, cfg, nil, logger, metricsCollector)
	if err != nil {
		return nil, nil, err
	}
	return application, logger, nil
}

func closeApp(application *app.App, logger *logging.StructuredLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Close(ctx); err != nil {
		logger.Error(ctx, "[INGESTER_ERROR] Failed to release resources", logging.Fields{}, err)
	}
}

func stationsCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "stations",
		Short: "Import the GHCN station reference list",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			application, logger, err := setup(ctx)
			if err != nil {
				return err
			}
			defer closeApp(application, logger)

			startTime := time.Now()
			if force {
				written, err := application.StationImport.Import(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Stations written: %d\n", written)
			} else {
				result, err := application.StationImport.EnsureStations(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Imported:         %t\n", result.Imported)
				fmt.Printf("Stations:         %d\n", result.StationsCount)
			}
			fmt.Printf("Duration:         %v\n", time.Since(startTime).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-import even when the station table is populated")
	return cmd
}

func warmCommand() *cobra.Command {
	var (
		stationList string
		stationFile string
		startYear   int
		endYear     int
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Pre-populate period statistics for a list of stations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ids, err := collectStationIDs(stationList, stationFile, args)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return fmt.Errorf("no stations given; use --stations, --stations-file or arguments")
			}

			var years *models.YearRange
			if cmd.Flags().Changed("start-year") || cmd.Flags().Changed("end-year") {
				var start, end *int
				if cmd.Flags().Changed("start-year") {
					start = &startYear
				}
				if cmd.Flags().Changed("end-year") {
					end = &endYear
				}
				if years, err = models.NewYearRange(start, end); err != nil {
					return err
				}
			}

			application, logger, err := setup(ctx)
			if err != nil {
				return err
			}
			defer closeApp(application, logger)

			results, err := application.Warmup.Warm(ctx, ids, years, concurrency)
			if err != nil {
				return err
			}

			printWarmResults(results)
			return nil
		},
	}

	cmd.Flags().StringVar(&stationList, "stations", "", "Comma-separated station IDs")
	cmd.Flags().StringVar(&stationFile, "stations-file", "", "File with one station ID per line")
	cmd.Flags().IntVar(&startYear, "start-year", 0, "First year to warm (requires --end-year)")
	cmd.Flags().IntVar(&endYear, "end-year", 0, "Last year to warm (requires --start-year)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Stations processed in parallel")
	return cmd
}

func printWarmResults(results []services.WarmResult) {
	failed := 0
	rows := 0

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("WARMUP COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	for _, r := range results {
		switch {
		case r.Error != "":
			failed++
			fmt.Printf("  %-12s FAILED  %s\n", r.StationID, r.Error)
		case r.Result != nil:
			rows += r.Result.RowsWritten
			fmt.Printf("  %-12s %-6s  rows=%d blocks=%d\n", r.StationID, r.Result.Mode, r.Result.RowsWritten, len(r.Result.Blocks))
		}
	}
	fmt.Printf("\nStations: %d  Failed: %d  Rows written: %d\n", len(results), failed, rows)
}
