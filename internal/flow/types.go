package flow

import (
	"fmt"
	"time"
)

// PartitionKey identifies the device and sub-meter a reading belongs to. Readings
// are ordered and segmented independently per partition.
type PartitionKey struct {
	DeviceID string
	SlaveID  string
}

func (k PartitionKey) String() string {
	return fmt.Sprintf("%s/%s", k.DeviceID, k.SlaveID)
}

// Reading is a single cumulative-total sample reported by a flow meter.
type Reading struct {
	DeviceID        string    `json:"productId"`
	SlaveID         string    `json:"slaveId"`
	Timestamp       time.Time `json:"timestamp"`
	CumulativeTotal float64   `json:"totalFlow"`
}

// Key returns the partition the reading belongs to.
func (r Reading) Key() PartitionKey {
	return PartitionKey{DeviceID: r.DeviceID, SlaveID: r.SlaveID}
}

// RatedReading is a Reading annotated with the rate derived from its predecessor.
type RatedReading struct {
	Reading
	InstantaneousRate float64 `json:"instantaneousRate"`
	ElapsedMillis     int64   `json:"elapsedMillis"`
}

// FlowPeriod summarizes one contiguous interval of flow.
type FlowPeriod struct {
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	DurationMinutes float64   `json:"durationMinutes"`
	TotalVolume     float64   `json:"totalVolume"`
	AverageRate     float64   `json:"avgFlowRate"`
	MaxRate         float64   `json:"maxFlowRate"`
	MinRate         float64   `json:"minFlowRate"`
	ReadingCount    int       `json:"readingCount"`
	// Unterminated is set when the input ended while the meter was still flowing.
	Unterminated bool `json:"unterminated,omitempty"`
}

// TimeRange is an inclusive [Start, End] interval.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Validate rejects zero or inverted ranges.
func (tr TimeRange) Validate() error {
	if tr.Start.IsZero() || tr.End.IsZero() {
		return fmt.Errorf("time range requires both start and end: %w", ErrInvalidInput)
	}
	if tr.End.Before(tr.Start) {
		return fmt.Errorf("time range end %s is before start %s: %w",
			tr.End.Format(time.RFC3339), tr.Start.Format(time.RFC3339), ErrInvalidInput)
	}
	return nil
}

// Widen returns the range extended by margin on both sides.
func (tr TimeRange) Widen(margin time.Duration) TimeRange {
	return TimeRange{Start: tr.Start.Add(-margin), End: tr.End.Add(margin)}
}

// Overlaps reports whether the period intersects the range.
func (tr TimeRange) Overlaps(p FlowPeriod) bool {
	return !p.EndTime.Before(tr.Start) && !p.StartTime.After(tr.End)
}

// DayRange returns the UTC calendar day containing t. End is the last
// microsecond of the day, the finest resolution TIMESTAMPTZ stores.
func DayRange(t time.Time) TimeRange {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return TimeRange{Start: start, End: start.Add(24*time.Hour - time.Microsecond)}
}
