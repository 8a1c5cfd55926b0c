// Package timescaledb reads flow-meter readings and sub-meter profiles from
// a TimescaleDB (PostgreSQL) database through GORM.
package timescaledb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chrissnell/remoteflow/internal/database"
	"github.com/chrissnell/remoteflow/internal/flow"
	"github.com/chrissnell/remoteflow/internal/log"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store serves readings and derived aggregates from TimescaleDB
type Store struct {
	db     *gorm.DB
	health atomic.Pointer[Health]
	logger *zap.SugaredLogger
}

// New connects to TimescaleDB and applies the schema migrations
func New(ctx context.Context, connectionString string) (*Store, error) {
	db, err := database.CreateConnection(connectionString)
	if err != nil {
		return nil, err
	}

	log.Info("applying TimescaleDB schema migrations...")
	if err := database.Migrate(db.WithContext(ctx)); err != nil {
		return nil, err
	}

	return NewWithDB(db), nil
}

// NewWithDB wraps an existing GORM connection
func NewWithDB(db *gorm.DB) *Store {
	return &Store{
		db:     db,
		logger: log.Named("timescaledb"),
	}
}

// FetchReadings returns the readings of key inside tr, oldest first
func (s *Store) FetchReadings(ctx context.Context, key flow.PartitionKey, tr flow.TimeRange) ([]flow.Reading, error) {
	var rows []database.SensorReading
	err := s.partition(ctx, key).
		Where("timestamp >= ? AND timestamp <= ?", tr.Start.UTC(), tr.End.UTC()).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error querying readings: %w", err)
	}
	return toReadings(rows), nil
}

// FetchReadingsForWindow returns the readings of key with start <= timestamp <= end, oldest first
func (s *Store) FetchReadingsForWindow(ctx context.Context, key flow.PartitionKey, start, end time.Time) ([]flow.Reading, error) {
	return s.FetchReadings(ctx, key, flow.TimeRange{Start: start, End: end})
}

// FramePage is one page of raw readings, newest first
type FramePage struct {
	Frames []flow.Reading
	Total  int64
	Page   int
	Limit  int

	// Predecessor is the reading immediately older than the last frame of
	// the page, or nil when the page reaches the first stored reading.
	Predecessor *flow.Reading
}

// FramePage returns page (1-based) of the readings of key inside tr, newest first
func (s *Store) FramePage(ctx context.Context, key flow.PartitionKey, tr flow.TimeRange, page, limit int) (FramePage, error) {
	if page < 1 || limit < 1 {
		return FramePage{}, fmt.Errorf("page %d and limit %d must be positive: %w", page, limit, flow.ErrInvalidInput)
	}

	fp := FramePage{Page: page, Limit: limit}
	inRange := func() *gorm.DB {
		return s.partition(ctx, key).Where("timestamp >= ? AND timestamp <= ?", tr.Start.UTC(), tr.End.UTC())
	}

	if err := inRange().Count(&fp.Total).Error; err != nil {
		return FramePage{}, fmt.Errorf("error counting frames: %w", err)
	}

	var rows []database.SensorReading
	err := inRange().
		Order("timestamp DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return FramePage{}, fmt.Errorf("error querying frames: %w", err)
	}
	fp.Frames = toReadings(rows)
	if len(rows) == 0 {
		return fp, nil
	}

	var prev []database.SensorReading
	err = s.partition(ctx, key).
		Where("timestamp < ?", rows[len(rows)-1].Timestamp).
		Order("timestamp DESC").
		Limit(1).
		Find(&prev).Error
	if err != nil {
		return FramePage{}, fmt.Errorf("error querying predecessor frame: %w", err)
	}
	if len(prev) == 1 {
		r := toReading(prev[0])
		fp.Predecessor = &r
	}

	return fp, nil
}

// CaptureDate is a UTC calendar day on which a partition reported readings
type CaptureDate struct {
	Date  string `json:"date" gorm:"column:date"`
	Count int64  `json:"count" gorm:"column:count"`
}

// CaptureDates returns the days with readings for key, oldest first
func (s *Store) CaptureDates(ctx context.Context, key flow.PartitionKey) ([]CaptureDate, error) {
	dates := []CaptureDate{}
	err := s.db.WithContext(ctx).Raw(captureDatesSQL, key.DeviceID, key.SlaveID).Scan(&dates).Error
	if err != nil {
		return nil, fmt.Errorf("error querying capture dates: %w", err)
	}
	return dates, nil
}

// DailyTotal is the consumption of one partition over a day
type DailyTotal struct {
	DeviceID    string    `json:"productId" gorm:"column:product_id"`
	SlaveID     string    `json:"slaveId" gorm:"column:slave_id"`
	FirstTotal  float64   `json:"firstTotal" gorm:"column:first_total"`
	LastTotal   float64   `json:"lastTotal" gorm:"column:last_total"`
	LastSeen    time.Time `json:"lastSeen" gorm:"column:last_seen"`
	Consumption float64   `json:"totalFlow" gorm:"-"`
}

// DailyTotals returns per-partition consumption (last minus first
// cumulative total) over the UTC day containing day, largest first.
func (s *Store) DailyTotals(ctx context.Context, day time.Time) ([]DailyTotal, error) {
	tr := flow.DayRange(day)

	totals := []DailyTotal{}
	err := s.db.WithContext(ctx).Raw(dailyTotalsSQL, tr.Start, tr.End).Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("error querying daily totals: %w", err)
	}

	for i := range totals {
		totals[i].Consumption = flow.Consumption(totals[i].FirstTotal, totals[i].LastTotal)
	}
	sortByConsumption(totals)
	return totals, nil
}

// thresholdOverride is the JSON document stored in slave_profiles.thresholds.
// Absent keys keep the configured value.
type thresholdOverride struct {
	FlowStartThreshold    *float64 `json:"flow_start_threshold"`
	FlowContinueThreshold *float64 `json:"flow_continue_threshold"`
	MinDurationMinutes    *float64 `json:"min_duration_minutes"`
	MinAverageRate        *float64 `json:"min_average_rate"`
	MaxPlausibleRate      *float64 `json:"max_plausible_rate"`
	MinTotalVolume        *float64 `json:"min_total_volume"`
}

func (o thresholdOverride) apply(base flow.Thresholds) flow.Thresholds {
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&base.FlowStartThreshold, o.FlowStartThreshold)
	set(&base.FlowContinueThreshold, o.FlowContinueThreshold)
	set(&base.MinDurationMinutes, o.MinDurationMinutes)
	set(&base.MinAverageRate, o.MinAverageRate)
	set(&base.MaxPlausibleRate, o.MaxPlausibleRate)
	set(&base.MinTotalVolume, o.MinTotalVolume)
	return base
}

// Thresholds merges the sub-meter's stored override into base. A missing or
// deleted profile, or an override that does not decode, yields base unchanged.
func (s *Store) Thresholds(ctx context.Context, key flow.PartitionKey, base flow.Thresholds) (flow.Thresholds, error) {
	var profile database.SlaveProfile
	err := s.db.WithContext(ctx).
		Where("product_id = ? AND slave_id = ? AND deleted = ?", key.DeviceID, key.SlaveID, false).
		Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return base, nil
	}
	if err != nil {
		return flow.Thresholds{}, fmt.Errorf("error querying slave profile: %w", err)
	}

	return mergeOverride(profile, base, s.logger), nil
}

func mergeOverride(profile database.SlaveProfile, base flow.Thresholds, logger *zap.SugaredLogger) flow.Thresholds {
	if len(profile.Thresholds.Bytes) == 0 {
		return base
	}

	var o thresholdOverride
	if err := json.Unmarshal(profile.Thresholds.Bytes, &o); err != nil {
		logger.Warnw("ignoring invalid threshold override",
			"productId", profile.ProductID, "slaveId", profile.SlaveID, "error", err)
		return base
	}

	th := o.apply(base)
	if th != base {
		logger.Debugw("applying threshold override", "productId", profile.ProductID, "slaveId", profile.SlaveID)
	}
	return th
}

func (s *Store) partition(ctx context.Context, key flow.PartitionKey) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&database.SensorReading{}).
		Where("product_id = ? AND slave_id = ?", key.DeviceID, key.SlaveID)
}

func toReading(r database.SensorReading) flow.Reading {
	return flow.Reading{
		DeviceID:        r.ProductID,
		SlaveID:         r.SlaveID,
		Timestamp:       r.Timestamp.UTC(),
		CumulativeTotal: r.TotalFlow,
	}
}

func toReadings(rows []database.SensorReading) []flow.Reading {
	readings := make([]flow.Reading, len(rows))
	for i, r := range rows {
		readings[i] = toReading(r)
	}
	return readings
}
