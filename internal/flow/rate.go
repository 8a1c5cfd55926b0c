package flow

import (
	"fmt"
	"strings"
)

// RateUnit names the time base rates are reported in.
type RateUnit string

const (
	PerSecond RateUnit = "per_second"
	PerMinute RateUnit = "per_minute"
	PerHour   RateUnit = "per_hour"
)

// DefaultRateUnit reports volume per hour, the unit flow meters display.
const DefaultRateUnit = PerHour

// RateConfig pins down the sign and unit convention for derived rates.
//
// The delta is always total_i - total_{i-1}, so a meter that advances yields a
// positive rate. ScaleFactor converts volume per millisecond into the reporting
// unit; when zero it is derived from Unit.
type RateConfig struct {
	Unit        RateUnit
	ScaleFactor float64
}

// ParseRateUnit accepts the configuration spellings of a rate unit.
func ParseRateUnit(s string) (RateUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "per_hour", "hour", "h":
		return PerHour, nil
	case "per_minute", "minute", "min", "m":
		return PerMinute, nil
	case "per_second", "second", "sec", "s":
		return PerSecond, nil
	default:
		return "", fmt.Errorf("unknown rate unit %q: %w", s, ErrInvalidInput)
	}
}

// Scale returns the multiplier applied to volume-per-millisecond.
func (c RateConfig) Scale() float64 {
	if c.ScaleFactor != 0 {
		return c.ScaleFactor
	}
	switch c.Unit {
	case PerSecond:
		return 1000
	case PerMinute:
		return 60 * 1000
	default:
		return 60 * 60 * 1000
	}
}

// DeriveRates annotates each reading of a single partition with the rate
// implied by the change in cumulative total since the previous reading.
//
// The input must be non-empty, belong to one partition and be in ascending
// timestamp order. The output has the same length and order as the input and
// the input slice is not modified. Negative rates (meter ran backward) are
// passed through for the validator to deal with.
func DeriveRates(readings []Reading, cfg RateConfig) ([]RatedReading, error) {
	if err := CheckOrdered(readings); err != nil {
		return nil, err
	}

	scale := cfg.Scale()
	rated := make([]RatedReading, len(readings))
	for i, r := range readings {
		rated[i] = RatedReading{Reading: r}
		if i == 0 {
			continue
		}

		prev := readings[i-1]
		elapsed := r.Timestamp.Sub(prev.Timestamp).Milliseconds()
		rated[i].ElapsedMillis = elapsed

		// Duplicate timestamps carry no time base; report 0.
		if elapsed == 0 {
			continue
		}

		delta := r.CumulativeTotal - prev.CumulativeTotal
		rated[i].InstantaneousRate = round2(delta / float64(elapsed) * scale)
	}

	return rated, nil
}

// CheckOrdered verifies that readings are non-empty, from one partition and
// sorted by ascending timestamp.
func CheckOrdered(readings []Reading) error {
	if len(readings) == 0 {
		return fmt.Errorf("empty reading sequence: %w", ErrInvalidInput)
	}

	key := readings[0].Key()
	for i := 1; i < len(readings); i++ {
		if readings[i].Key() != key {
			return fmt.Errorf("reading %d belongs to %s, expected %s: %w", i, readings[i].Key(), key, ErrInvalidInput)
		}
		if readings[i].Timestamp.Before(readings[i-1].Timestamp) {
			return fmt.Errorf("reading %d at %s precedes reading %d: %w",
				i, readings[i].Timestamp.Format("2006-01-02T15:04:05.000Z07:00"), i-1, ErrInvalidInput)
		}
	}
	return nil
}
