package main

import (
	"math/rand"
	"time"

	"github.com/chrissnell/remoteflow/internal/database"
)

// MeterEmulator generates cumulative totals for one sub-meter. Usage comes in
// bursts separated by idle stretches, the way household fixtures draw water.
type MeterEmulator struct {
	productID string
	slaveID   string
	interval  time.Duration
	rng       *rand.Rand

	total     float64
	burstRate float64 // volume per hour while a burst is running
	remaining int     // samples left in the current burst

	burstChance float64
	maxRate     float64
	maxSamples  int
}

func NewMeterEmulator(productID, slaveID string, interval time.Duration, seed int64) *MeterEmulator {
	return &MeterEmulator{
		productID:   productID,
		slaveID:     slaveID,
		interval:    interval,
		rng:         rand.New(rand.NewSource(seed)),
		total:       1000,
		burstChance: 0.05,
		maxRate:     1200,
		maxSamples:  15,
	}
}

// Next advances the meter by one interval and returns the reading at ts.
func (m *MeterEmulator) Next(ts time.Time) database.SensorReading {
	if m.remaining == 0 && m.rng.Float64() < m.burstChance {
		m.remaining = 2 + m.rng.Intn(m.maxSamples)
		m.burstRate = m.maxRate * (0.2 + 0.8*m.rng.Float64())
	}

	rate := 0.0
	if m.remaining > 0 {
		rate = m.burstRate * (0.9 + 0.2*m.rng.Float64())
		m.remaining--
	}
	m.total += rate * m.interval.Hours()

	return database.SensorReading{
		ProductID: m.productID,
		SlaveID:   m.slaveID,
		Timestamp: ts.UTC(),
		FlowRate:  rate,
		TotalFlow: m.total,
	}
}

// Backfill generates readings every interval in [start, end).
func (m *MeterEmulator) Backfill(start, end time.Time) []database.SensorReading {
	var readings []database.SensorReading
	for ts := start; ts.Before(end); ts = ts.Add(m.interval) {
		readings = append(readings, m.Next(ts))
	}
	return readings
}
