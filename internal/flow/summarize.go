package flow

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SummarizeInterval computes the statistics of one interval.
//
// The period runs from the baseline (or the first member when there is none)
// to the last member. Volume is the difference of the cumulative totals at
// those two readings, never a sum of rates. Rate statistics cover the members
// only: the baseline's own rate describes the idle span before the period.
// An interval without members yields the zero FlowPeriod.
func SummarizeInterval(iv Interval) FlowPeriod {
	if len(iv.Readings) == 0 {
		return FlowPeriod{}
	}

	first := iv.Readings[0].Reading
	if iv.HasBaseline {
		first = iv.Baseline.Reading
	}
	last := iv.Readings[len(iv.Readings)-1].Reading

	rates := make([]float64, len(iv.Readings))
	for i, r := range iv.Readings {
		rates[i] = r.InstantaneousRate
	}

	count := len(iv.Readings)
	if iv.HasBaseline {
		count++
	}

	return FlowPeriod{
		StartTime:       first.Timestamp,
		EndTime:         last.Timestamp,
		DurationMinutes: round2(float64(last.Timestamp.Sub(first.Timestamp)) / float64(time.Minute)),
		TotalVolume:     volumeBetween(first.CumulativeTotal, last.CumulativeTotal),
		AverageRate:     round2(stat.Mean(rates, nil)),
		MaxRate:         round2(floats.Max(rates)),
		MinRate:         round2(floats.Min(rates)),
		ReadingCount:    count,
		Unterminated:    iv.Open,
	}
}
