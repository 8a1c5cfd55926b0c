package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type memorySource struct {
	readings []Reading
	err      error
	lastTR   TimeRange
}

func (m *memorySource) FetchReadings(ctx context.Context, key PartitionKey, tr TimeRange) ([]Reading, error) {
	m.lastTR = tr
	return m.fetch(key, tr.Start, tr.End)
}

func (m *memorySource) FetchReadingsForWindow(ctx context.Context, key PartitionKey, start, end time.Time) ([]Reading, error) {
	return m.fetch(key, start, end)
}

func (m *memorySource) fetch(key PartitionKey, start, end time.Time) ([]Reading, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []Reading
	for _, r := range m.readings {
		if r.Key() == key && !r.Timestamp.Before(start) && !r.Timestamp.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fixedResolver struct {
	th Thresholds
}

func (f fixedResolver) Thresholds(ctx context.Context, key PartitionKey, base Thresholds) (Thresholds, error) {
	return f.th, nil
}

var testKey = PartitionKey{DeviceID: "WM-0042", SlaveID: "1"}

func newTestAnalyzer(src ReadingSource, settings Settings) *Analyzer {
	return NewAnalyzer(src, settings, zap.NewNop().Sugar())
}

func TestAnalyzerPeriodsWidensAndClips(t *testing.T) {
	// flow from 07:50 to 08:10 crosses the start of the requested range, a
	// second flow sits entirely before the range
	src := &memorySource{readings: series(
		[2]float64{-45 * 60000, 0},
		[2]float64{-40 * 60000, 50},
		[2]float64{-35 * 60000, 50},
		[2]float64{-10 * 60000, 50},
		[2]float64{0, 100},
		[2]float64{10 * 60000, 150},
		[2]float64{20 * 60000, 150},
	)}

	a := newTestAnalyzer(src, Settings{
		Rate:        RateConfig{Unit: PerMinute},
		RangeMargin: time.Hour,
	})

	tr := TimeRange{Start: epoch, End: epoch.Add(time.Hour)}
	periods, err := a.Periods(context.Background(), testKey, tr)
	if err != nil {
		t.Fatalf("Periods() error = %v", err)
	}

	if !src.lastTR.Start.Equal(epoch.Add(-time.Hour)) || !src.lastTR.End.Equal(epoch.Add(2*time.Hour)) {
		t.Errorf("source queried %v..%v, expected range widened by one hour", src.lastTR.Start, src.lastTR.End)
	}
	if len(periods) != 1 {
		t.Fatalf("Periods() returned %d periods, expected 1", len(periods))
	}
	if !periods[0].StartTime.Equal(at(-10*60000)) {
		t.Errorf("period starts at %v, expected %v", periods[0].StartTime, at(-10*60000))
	}
	if periods[0].TotalVolume != 100 {
		t.Errorf("TotalVolume = %v, expected 100", periods[0].TotalVolume)
	}
}

func TestAnalyzerPeriodsNoData(t *testing.T) {
	a := newTestAnalyzer(&memorySource{}, Settings{})
	periods, err := a.DayPeriods(context.Background(), testKey, epoch)
	if err != nil {
		t.Fatalf("DayPeriods() error = %v", err)
	}
	if periods == nil || len(periods) != 0 {
		t.Errorf("DayPeriods() = %v, expected empty non-nil slice", periods)
	}
}

func TestAnalyzerPeriodsUsesResolver(t *testing.T) {
	src := &memorySource{readings: series(
		[2]float64{0, 0},
		[2]float64{60000, 1},
		[2]float64{120000, 1},
	)}
	a := newTestAnalyzer(src, Settings{Rate: RateConfig{Unit: PerMinute}})

	tr := TimeRange{Start: epoch, End: epoch.Add(time.Hour)}
	if got, _ := a.Periods(context.Background(), testKey, tr); len(got) != 1 {
		t.Fatalf("Periods() without override returned %d periods, expected 1", len(got))
	}

	a.SetThresholdResolver(fixedResolver{th: Thresholds{MinTotalVolume: 5}})
	if got, _ := a.Periods(context.Background(), testKey, tr); len(got) != 0 {
		t.Errorf("Periods() with override returned %d periods, expected 0", len(got))
	}
}

func TestAnalyzerRejectsBadRanges(t *testing.T) {
	a := newTestAnalyzer(&memorySource{}, Settings{MaxRange: 24 * time.Hour})

	tests := []struct {
		name string
		tr   TimeRange
	}{
		{name: "inverted", tr: TimeRange{Start: epoch, End: epoch.Add(-time.Minute)}},
		{name: "missing end", tr: TimeRange{Start: epoch}},
		{name: "too long", tr: TimeRange{Start: epoch, End: epoch.Add(48 * time.Hour)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Periods(context.Background(), testKey, tt.tr); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Periods() error = %v, expected ErrInvalidInput", err)
			}
			if _, err := a.AnalyzeWindow(context.Background(), testKey, tt.tr.Start, tt.tr.End); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("AnalyzeWindow() error = %v, expected ErrInvalidInput", err)
			}
		})
	}
}

func TestAnalyzerPropagatesSourceErrors(t *testing.T) {
	boom := errors.New("connection refused")
	a := newTestAnalyzer(&memorySource{err: boom}, Settings{})

	_, err := a.AnalyzeWindow(context.Background(), testKey, epoch, epoch.Add(time.Hour))
	if !errors.Is(err, boom) {
		t.Errorf("AnalyzeWindow() error = %v, expected wrapped source error", err)
	}
}

func TestAnalyzerWindowSingleReading(t *testing.T) {
	src := &memorySource{readings: series([2]float64{30 * 60000, 500})}
	a := newTestAnalyzer(src, Settings{})

	got, err := a.AnalyzeWindow(context.Background(), testKey, epoch, epoch.Add(time.Hour))
	if err != nil {
		t.Fatalf("AnalyzeWindow() error = %v", err)
	}
	if got.Status != WindowInsufficientData {
		t.Errorf("Status = %s, expected %s", got.Status, WindowInsufficientData)
	}
}

func TestAnalyzerRateFrames(t *testing.T) {
	a := newTestAnalyzer(&memorySource{}, Settings{Rate: RateConfig{Unit: PerMinute}})
	all := series(
		[2]float64{0, 100},
		[2]float64{60000, 130},
		[2]float64{120000, 160},
	)

	rated, err := a.RateFrames(all[1:], &all[0])
	if err != nil {
		t.Fatalf("RateFrames() error = %v", err)
	}
	if len(rated) != 2 {
		t.Fatalf("RateFrames() returned %d frames, expected 2", len(rated))
	}
	if rated[0].InstantaneousRate != 30 || rated[0].ElapsedMillis != 60000 {
		t.Errorf("first frame rate/elapsed = %v/%d, expected 30/60000", rated[0].InstantaneousRate, rated[0].ElapsedMillis)
	}

	unseeded, err := a.RateFrames(all[1:], nil)
	if err != nil {
		t.Fatalf("RateFrames() error = %v", err)
	}
	if unseeded[0].InstantaneousRate != 0 {
		t.Errorf("unseeded first frame rate = %v, expected 0", unseeded[0].InstantaneousRate)
	}
}
