// Package flow derives instantaneous flow rates from cumulative flow-meter
// readings and segments them into summarized usage periods.
//
// The engine functions (DeriveRates, Segment, SummarizeInterval, Validator,
// AnalyzeWindowReadings) are pure and operate on materialized, time-ordered
// batches. Analyzer wires them to a ReadingSource.
package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/chrissnell/remoteflow/internal/log"
	"go.uber.org/zap"
)

// ReadingSource fetches time-ordered readings for one partition.
type ReadingSource interface {
	// FetchReadings returns readings inside tr in ascending timestamp order.
	FetchReadings(ctx context.Context, key PartitionKey, tr TimeRange) ([]Reading, error)

	// FetchReadingsForWindow returns readings with start <= timestamp <= end in
	// ascending timestamp order.
	FetchReadingsForWindow(ctx context.Context, key PartitionKey, start, end time.Time) ([]Reading, error)
}

// ThresholdResolver supplies per-partition threshold overrides.
type ThresholdResolver interface {
	Thresholds(ctx context.Context, key PartitionKey, base Thresholds) (Thresholds, error)
}

// Settings configures an Analyzer.
type Settings struct {
	Rate       RateConfig
	Thresholds Thresholds

	// RangeMargin widens range queries so that a period crossing the range
	// boundary is seen with its real start and end.
	RangeMargin time.Duration

	// MaxRange bounds the span of a single request. Zero means unbounded.
	MaxRange time.Duration
}

// Analyzer runs the flow pipeline against readings fetched from a source.
type Analyzer struct {
	source   ReadingSource
	resolver ThresholdResolver
	settings Settings
	logger   *zap.SugaredLogger
}

// NewAnalyzer creates an Analyzer. logger may be nil.
func NewAnalyzer(source ReadingSource, settings Settings, logger *zap.SugaredLogger) *Analyzer {
	if logger == nil {
		logger = log.GetSugaredLogger()
	}
	return &Analyzer{
		source:   source,
		settings: settings,
		logger:   logger,
	}
}

// SetThresholdResolver enables per-partition threshold overrides.
func (a *Analyzer) SetThresholdResolver(r ThresholdResolver) {
	a.resolver = r
}

// Settings returns the analyzer's base settings.
func (a *Analyzer) Settings() Settings {
	return a.settings
}

// Periods returns the validated flow periods of key that overlap tr, ordered
// by start time.
func (a *Analyzer) Periods(ctx context.Context, key PartitionKey, tr TimeRange) ([]FlowPeriod, error) {
	logger := log.FromContext(ctx, a.logger)

	if err := a.checkRange(tr); err != nil {
		return nil, err
	}

	readings, err := a.source.FetchReadings(ctx, key, tr.Widen(a.settings.RangeMargin))
	if err != nil {
		return nil, fmt.Errorf("fetch readings for %s: %w", key, err)
	}
	if len(readings) == 0 {
		logger.Debugf("no readings for %s between %s and %s", key,
			tr.Start.Format(time.RFC3339), tr.End.Format(time.RFC3339))
		return []FlowPeriod{}, nil
	}

	th, err := a.thresholds(ctx, key)
	if err != nil {
		return nil, err
	}

	rated, err := DeriveRates(readings, a.settings.Rate)
	if err != nil {
		return nil, err
	}

	intervals := Segment(rated, th)
	summarized := make([]FlowPeriod, 0, len(intervals))
	for _, iv := range intervals {
		summarized = append(summarized, SummarizeInterval(iv))
	}

	kept, rejected := NewValidator(th).Screen(summarized)
	for _, rj := range rejected {
		logger.Debugw("discarded noise period",
			"partition", key.String(),
			"start", rj.Period.StartTime,
			"end", rj.Period.EndTime,
			"rule", rj.Rule,
			"reason", rj.Reason)
	}

	periods := make([]FlowPeriod, 0, len(kept))
	for _, p := range kept {
		if tr.Overlaps(p) {
			periods = append(periods, p)
		}
	}

	logger.Debugf("%s: %d readings, %d intervals, %d discarded, %d periods in range",
		key, len(readings), len(intervals), len(rejected), len(periods))

	return periods, nil
}

// DayPeriods returns the validated periods of the UTC day containing day.
func (a *Analyzer) DayPeriods(ctx context.Context, key PartitionKey, day time.Time) ([]FlowPeriod, error) {
	return a.Periods(ctx, key, DayRange(day))
}

// AnalyzeWindow summarizes the readings of key inside [start, end] as one
// period. A window with fewer than two readings yields WindowInsufficientData.
func (a *Analyzer) AnalyzeWindow(ctx context.Context, key PartitionKey, start, end time.Time) (WindowResult, error) {
	tr := TimeRange{Start: start, End: end}
	if err := a.checkRange(tr); err != nil {
		return WindowResult{}, err
	}

	readings, err := a.source.FetchReadingsForWindow(ctx, key, start, end)
	if err != nil {
		return WindowResult{}, fmt.Errorf("fetch window readings for %s: %w", key, err)
	}

	result, err := AnalyzeWindowReadings(readings, a.settings.Rate)
	if err != nil {
		return WindowResult{}, err
	}

	if !result.Sufficient() {
		log.FromContext(ctx, a.logger).Infof("window %s to %s for %s has %d readings; insufficient data",
			start.Format(time.RFC3339), end.Format(time.RFC3339), key, result.ReadingCount)
	}
	return result, nil
}

// RateFrames derives rates for an ascending page of frames. When predecessor
// is non-nil it is the reading just before the page; it seeds the first
// frame's rate and is not returned.
func (a *Analyzer) RateFrames(frames []Reading, predecessor *Reading) ([]RatedReading, error) {
	if len(frames) == 0 {
		return []RatedReading{}, nil
	}
	if predecessor == nil {
		return DeriveRates(frames, a.settings.Rate)
	}

	seeded := make([]Reading, 0, len(frames)+1)
	seeded = append(seeded, *predecessor)
	seeded = append(seeded, frames...)

	rated, err := DeriveRates(seeded, a.settings.Rate)
	if err != nil {
		return nil, err
	}
	return rated[1:], nil
}

func (a *Analyzer) checkRange(tr TimeRange) error {
	if err := tr.Validate(); err != nil {
		return err
	}
	if a.settings.MaxRange > 0 && tr.End.Sub(tr.Start) > a.settings.MaxRange {
		return fmt.Errorf("time range of %s exceeds limit of %s: %w",
			tr.End.Sub(tr.Start).Round(time.Minute), a.settings.MaxRange, ErrInvalidInput)
	}
	return nil
}

func (a *Analyzer) thresholds(ctx context.Context, key PartitionKey) (Thresholds, error) {
	if a.resolver == nil {
		return a.settings.Thresholds, nil
	}
	th, err := a.resolver.Thresholds(ctx, key, a.settings.Thresholds)
	if err != nil {
		return Thresholds{}, fmt.Errorf("resolve thresholds for %s: %w", key, err)
	}
	return th, nil
}
