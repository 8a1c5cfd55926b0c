package main

import (
	"sort"

	"github.com/chrissnell/remoteflow/internal/flow"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// RateStats describes the distribution of derived rates over a sample
type RateStats struct {
	Samples  int
	Positive int
	Negative int
	Mean     float64
	StdDev   float64
	P05      float64
	P50      float64
	P95      float64
	P99      float64
	Max      float64
}

// rateStats summarizes the rates of every reading that has a predecessor.
// Percentiles are taken over the positive rates only; zero is idle and
// negative means the counter moved backward.
func rateStats(rated []flow.RatedReading) RateStats {
	var s RateStats
	var all, positive []float64

	for i, r := range rated {
		if i == 0 || r.ElapsedMillis == 0 {
			continue
		}
		all = append(all, r.InstantaneousRate)
		switch {
		case r.InstantaneousRate > 0:
			positive = append(positive, r.InstantaneousRate)
		case r.InstantaneousRate < 0:
			s.Negative++
		}
	}

	s.Samples = len(all)
	s.Positive = len(positive)
	if len(all) > 0 {
		s.Mean, s.StdDev = stat.MeanStdDev(all, nil)
	}
	if len(positive) == 0 {
		return s
	}

	sort.Float64s(positive)
	s.P05 = stat.Quantile(0.05, stat.Empirical, positive, nil)
	s.P50 = stat.Quantile(0.50, stat.Empirical, positive, nil)
	s.P95 = stat.Quantile(0.95, stat.Empirical, positive, nil)
	s.P99 = stat.Quantile(0.99, stat.Empirical, positive, nil)
	s.Max = positive[len(positive)-1]
	return s
}

// suggestThresholds proposes segmentation thresholds from observed rates.
// The lowest positive rates are treated as meter noise: a period continues
// above that floor and opens above twice it. The plausible ceiling sits 50%
// above the 99th percentile. Validation bounds not derived from rates are
// kept from base.
func suggestThresholds(s RateStats, base flow.Thresholds) flow.Thresholds {
	if s.Positive == 0 {
		return base
	}

	th := base
	th.FlowContinueThreshold = round2(s.P05)
	th.FlowStartThreshold = round2(2 * s.P05)
	th.MaxPlausibleRate = round2(1.5 * s.P99)
	return th
}

// TrialResult compares detected periods against the raw counter movement
type TrialResult struct {
	Periods        []flow.FlowPeriod
	PeriodVolume   float64
	CounterVolume  float64
	CapturedVolume float64 // share of counter movement inside detected periods, 0..1
}

func trial(rated []flow.RatedReading, th flow.Thresholds) TrialResult {
	var t TrialResult
	if len(rated) == 0 {
		return t
	}

	t.Periods = flow.SegmentPeriods(rated, th)

	sum := decimal.Zero
	for _, p := range t.Periods {
		sum = sum.Add(decimal.NewFromFloat(p.TotalVolume))
	}
	t.PeriodVolume, _ = sum.Round(2).Float64()
	t.CounterVolume = flow.Consumption(rated[0].CumulativeTotal, rated[len(rated)-1].CumulativeTotal)

	if t.CounterVolume > 0 {
		t.CapturedVolume = round2(t.PeriodVolume / t.CounterVolume)
	}
	return t
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
