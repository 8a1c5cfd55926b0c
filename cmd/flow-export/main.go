package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/chrissnell/remoteflow/internal/flow"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	Host      string
	Port      int
	Database  string
	User      string
	Password  string
	SSLMode   string
	ProductID string
	SlaveID   string
	Date      string
	Start     string
	End       string
	What      string
	Format    ExportFormat
	Output    string
}

func main() {
	var cfg Config

	flag.StringVar(&cfg.Host, "host", "localhost", "Database host")
	flag.IntVar(&cfg.Port, "port", 5432, "Database port")
	flag.StringVar(&cfg.Database, "database", "remoteflow", "Database name")
	flag.StringVar(&cfg.User, "user", "postgres", "Database user")
	flag.StringVar(&cfg.Password, "password", "", "Database password")
	flag.StringVar(&cfg.SSLMode, "sslmode", "disable", "SSL mode (disable, require, etc)")
	flag.StringVar(&cfg.ProductID, "product", "", "Device (product) ID (required)")
	flag.StringVar(&cfg.SlaveID, "slave", "", "Sub-meter (slave) ID (default every sub-meter of -product)")
	flag.StringVar(&cfg.Date, "date", "", "UTC day to export (YYYY-MM-DD)")
	flag.StringVar(&cfg.Start, "start", "", "Range start (RFC3339), used when -date is not given")
	flag.StringVar(&cfg.End, "end", "", "Range end (RFC3339), used when -date is not given")
	flag.StringVar(&cfg.What, "what", "periods", "What to export: periods or frames")
	formatStr := flag.String("format", "csv", "Output format: csv or json")
	flag.StringVar(&cfg.Output, "output", "", "Output file (default stdout)")
	rateUnit := flag.String("rate-unit", "per_hour", "Rate unit: per_second, per_minute or per_hour")
	startThreshold := flag.Float64("flow-start-threshold", 0, "Rate above which a period opens")
	continueThreshold := flag.Float64("flow-continue-threshold", 0, "Rate above which a period stays open")
	minVolume := flag.Float64("min-volume", 0, "Minimum period volume")
	flag.Parse()

	cfg.Format = ExportFormat(*formatStr)
	if cfg.Format != FormatCSV && cfg.Format != FormatJSON {
		log.Fatalf("Invalid format: %s. Must be csv or json", *formatStr)
	}
	if cfg.ProductID == "" {
		log.Fatal("-product is required")
	}

	tr, err := exportRange(cfg.Date, cfg.Start, cfg.End)
	if err != nil {
		log.Fatalf("Invalid range: %v", err)
	}

	unit, err := flow.ParseRateUnit(*rateUnit)
	if err != nil {
		log.Fatalf("Invalid rate unit: %v", err)
	}

	ctx := context.Background()
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	var out io.Writer = os.Stdout
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	const rangeMargin = time.Hour

	pg := &pgxSource{pool: pool}
	var (
		source flow.ReadingSource = pg
		keys   []flow.PartitionKey
	)
	if cfg.SlaveID != "" {
		keys = []flow.PartitionKey{{DeviceID: cfg.ProductID, SlaveID: cfg.SlaveID}}
	} else {
		readings, err := pg.FetchDevice(ctx, cfg.ProductID, tr.Widen(rangeMargin))
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		batch := newBatchSource(readings)
		source, keys = batch, batch.keys
		log.Printf("Found %d sub-meters for %s", len(keys), cfg.ProductID)
	}

	analyzer := flow.NewAnalyzer(source, flow.Settings{
		Rate: flow.RateConfig{Unit: unit},
		Thresholds: flow.Thresholds{
			FlowStartThreshold:    *startThreshold,
			FlowContinueThreshold: *continueThreshold,
			MinTotalVolume:        *minVolume,
		},
		RangeMargin: rangeMargin,
	}, nil)

	start := time.Now()
	switch cfg.What {
	case "periods":
		parts, err := exportPeriods(ctx, analyzer, keys, tr)
		if err != nil {
			log.Fatalf("Analysis failed: %v", err)
		}
		if err := writePeriods(out, cfg.Format, parts); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		log.Printf("Exported periods for %d sub-meters in %v", len(parts), time.Since(start))
	case "frames":
		frames, err := exportFrames(ctx, analyzer, source, keys, tr)
		if err != nil {
			log.Fatalf("Rate derivation failed: %v", err)
		}
		if err := writeFrames(out, cfg.Format, frames); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		log.Printf("Exported %d frames in %v", len(frames), time.Since(start))
	default:
		log.Fatalf("Invalid -what: %s. Must be periods or frames", cfg.What)
	}
}

func exportPeriods(ctx context.Context, analyzer *flow.Analyzer, keys []flow.PartitionKey, tr flow.TimeRange) ([]partitionPeriods, error) {
	parts := make([]partitionPeriods, 0, len(keys))
	for _, key := range keys {
		periods, err := analyzer.Periods(ctx, key, tr)
		if err != nil {
			return nil, err
		}
		parts = append(parts, partitionPeriods{ProductID: key.DeviceID, SlaveID: key.SlaveID, FlowPeriods: periods})
	}
	return parts, nil
}

func exportFrames(ctx context.Context, analyzer *flow.Analyzer, source flow.ReadingSource, keys []flow.PartitionKey, tr flow.TimeRange) ([]flow.RatedReading, error) {
	var frames []flow.RatedReading
	for _, key := range keys {
		readings, err := source.FetchReadings(ctx, key, tr)
		if err != nil {
			return nil, err
		}
		rated, err := analyzer.RateFrames(readings, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		frames = append(frames, rated...)
	}
	return frames, nil
}

func exportRange(date, start, end string) (flow.TimeRange, error) {
	if date != "" {
		d, err := time.Parse("2006-01-02", date)
		if err != nil {
			return flow.TimeRange{}, err
		}
		return flow.DayRange(d), nil
	}

	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return flow.TimeRange{}, fmt.Errorf("-start: %w", err)
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return flow.TimeRange{}, fmt.Errorf("-end: %w", err)
	}
	tr := flow.TimeRange{Start: s.UTC(), End: e.UTC()}
	return tr, tr.Validate()
}
