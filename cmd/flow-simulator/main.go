// Package main feeds synthetic flow-meter readings into the readings database.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chrissnell/remoteflow/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func main() {
	var (
		dsn       = flag.String("dsn", "", "TimescaleDB connection string (required)")
		productID = flag.String("product", "SIM-0001", "Device (product) ID to report as")
		slaveID   = flag.String("slave", "1", "Sub-meter (slave) ID to report as")
		interval  = flag.Duration("interval", time.Minute, "Time between readings")
		backfill  = flag.String("backfill", "", "Generate a full UTC day (YYYY-MM-DD) and exit")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
		migrate   = flag.Bool("migrate", true, "Apply the readings schema before writing")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("-dsn is required")
	}
	if *interval <= 0 {
		log.Fatal("-interval must be positive")
	}

	db, err := database.CreateConnection(*dsn)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	if *migrate {
		if err := database.Migrate(db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
	}

	emu := NewMeterEmulator(*productID, *slaveID, *interval, *seed)

	if *backfill != "" {
		day, err := time.Parse("2006-01-02", *backfill)
		if err != nil {
			log.Fatalf("Invalid -backfill date: %v", err)
		}
		readings := emu.Backfill(day, day.Add(24*time.Hour))
		if err := insert(db, readings); err != nil {
			log.Fatalf("Backfill failed: %v", err)
		}
		log.Printf("Wrote %d readings for %s/%s on %s", len(readings), *productID, *slaveID, *backfill)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	log.Printf("Flow meter simulator writing %s/%s every %v", *productID, *slaveID, *interval)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ts := <-ticker.C:
			r := emu.Next(ts)
			if err := insert(db.WithContext(ctx), []database.SensorReading{r}); err != nil {
				log.Printf("write error: %v", err)
			}
		}
	}
}

func insert(db *gorm.DB, readings []database.SensorReading) error {
	if len(readings) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(readings, 500).Error
}
