package main

import (
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chrissnell/remoteflow/internal/flow"
	_ "github.com/lib/pq"
)

func main() {
	// Command line flags
	var (
		dbHost    = flag.String("db-host", "localhost", "Database host")
		dbPort    = flag.Int("db-port", 5432, "Database port")
		dbUser    = flag.String("db-user", "postgres", "Database user")
		dbPass    = flag.String("db-pass", "", "Database password")
		dbName    = flag.String("db-name", "remoteflow", "Database name")
		productID = flag.String("product", "", "Device (product) ID to calibrate (required)")
		slaveID   = flag.String("slave", "1", "Sub-meter (slave) ID")
		days      = flag.Int("days", 7, "Number of days of data to analyze")
		rateUnit  = flag.String("rate-unit", "per_hour", "Rate unit: per_second, per_minute or per_hour")
		minVolume = flag.Float64("min-volume", 0, "Minimum period volume kept by validation")
		csvOutput = flag.String("csv", "", "Optional CSV output file path")
	)
	flag.Parse()

	if *productID == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -product <id> [-slave <id>] [-days N]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	unit, err := flow.ParseRateUnit(*rateUnit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		*dbHost, *dbPort, *dbUser, *dbPass, *dbName)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "Error pinging database: %v\n", err)
		os.Exit(1)
	}

	key := flow.PartitionKey{DeviceID: *productID, SlaveID: *slaveID}

	fmt.Printf("Flow Threshold Calibration\n")
	fmt.Printf("==========================\n\n")
	fmt.Printf("  Meter: %s\n", key)
	fmt.Printf("  Analysis Period: %d days\n", *days)
	fmt.Printf("  Rate Unit: %s\n\n", unit)

	readings, err := fetchReadings(db, key, *days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying readings: %v\n", err)
		os.Exit(1)
	}
	if len(readings) < 10 {
		fmt.Fprintf(os.Stderr, "Error: Not enough readings (%d). Need at least 10.\n", len(readings))
		os.Exit(1)
	}

	rated, err := flow.DeriveRates(readings, flow.RateConfig{Unit: unit})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error deriving rates: %v\n", err)
		os.Exit(1)
	}

	stats := rateStats(rated)
	displayStats(stats)

	th := suggestThresholds(stats, flow.Thresholds{MinTotalVolume: *minVolume})
	result := trial(rated, th)
	displaySuggestion(th, result)

	if *csvOutput != "" {
		if err := exportCSV(*csvOutput, result.Periods); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing CSV: %v\n", err)
		} else {
			fmt.Printf("\nPeriods exported to: %s\n", *csvOutput)
		}
	}
}

func fetchReadings(db *sql.DB, key flow.PartitionKey, days int) ([]flow.Reading, error) {
	query := `
		SELECT timestamp, total_flow
		FROM water_sensor_data
		WHERE product_id = $1
		  AND slave_id = $2
		  AND timestamp >= NOW() - INTERVAL '1 day' * $3
		ORDER BY timestamp
	`

	rows, err := db.Query(query, key.DeviceID, key.SlaveID, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []flow.Reading
	for rows.Next() {
		r := flow.Reading{DeviceID: key.DeviceID, SlaveID: key.SlaveID}
		if err := rows.Scan(&r.Timestamp, &r.CumulativeTotal); err != nil {
			return nil, err
		}
		r.Timestamp = r.Timestamp.UTC()
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func displayStats(s RateStats) {
	fmt.Printf("Rate distribution (%d samples, %d flowing, %d negative):\n", s.Samples, s.Positive, s.Negative)
	fmt.Printf("  Mean: %10.2f   StdDev: %10.2f\n", s.Mean, s.StdDev)
	fmt.Printf("  P05:  %10.2f   P50:    %10.2f\n", s.P05, s.P50)
	fmt.Printf("  P95:  %10.2f   P99:    %10.2f\n", s.P95, s.P99)
	fmt.Printf("  Max:  %10.2f\n\n", s.Max)
	if s.Negative > 0 {
		fmt.Printf("  Warning: counter moved backward %d times; check for meter resets\n\n", s.Negative)
	}
}

func displaySuggestion(th flow.Thresholds, r TrialResult) {
	fmt.Printf("Suggested analysis configuration:\n")
	fmt.Printf("  analysis:\n")
	fmt.Printf("    flow-start-threshold: %g\n", th.FlowStartThreshold)
	fmt.Printf("    flow-continue-threshold: %g\n", th.FlowContinueThreshold)
	fmt.Printf("    max-plausible-rate: %g\n", th.MaxPlausibleRate)
	if th.MinTotalVolume > 0 {
		fmt.Printf("    min-total-volume: %g\n", th.MinTotalVolume)
	}

	fmt.Printf("\nTrial run with suggested thresholds:\n")
	fmt.Printf("  Periods detected: %d\n", len(r.Periods))
	fmt.Printf("  Volume in periods: %.2f of %.2f counter movement (%.0f%%)\n",
		r.PeriodVolume, r.CounterVolume, r.CapturedVolume*100)
}

func exportCSV(filename string, periods []flow.FlowPeriod) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Start", "End", "Duration_min", "Volume", "Avg_Rate", "Max_Rate", "Min_Rate", "Readings"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range periods {
		record := []string{
			p.StartTime.Format(time.RFC3339),
			p.EndTime.Format(time.RFC3339),
			fmt.Sprintf("%.2f", p.DurationMinutes),
			fmt.Sprintf("%.2f", p.TotalVolume),
			fmt.Sprintf("%.2f", p.AverageRate),
			fmt.Sprintf("%.2f", p.MaxRate),
			fmt.Sprintf("%.2f", p.MinRate),
			fmt.Sprintf("%d", p.ReadingCount),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}
