package flow

import (
	"testing"
)

func TestAnalyzeWindowReadings(t *testing.T) {
	tests := []struct {
		name         string
		readings     []Reading
		wantStatus   WindowStatus
		wantVolume   float64
		wantDuration float64
	}{
		{
			name:       "empty window",
			readings:   nil,
			wantStatus: WindowInsufficientData,
		},
		{
			name:       "single reading",
			readings:   series([2]float64{0, 100}),
			wantStatus: WindowInsufficientData,
		},
		{
			name: "tanker fill",
			readings: series(
				[2]float64{0, 1000},
				[2]float64{60000, 1400},
				[2]float64{120000, 1800},
				[2]float64{180000, 1800},
			),
			wantStatus:   WindowOK,
			wantVolume:   800,
			wantDuration: 3,
		},
		{
			name: "idle window still summarized",
			readings: series(
				[2]float64{0, 1000},
				[2]float64{60000, 1000},
			),
			wantStatus:   WindowOK,
			wantVolume:   0,
			wantDuration: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AnalyzeWindowReadings(tt.readings, RateConfig{Unit: PerMinute})
			if err != nil {
				t.Fatalf("AnalyzeWindowReadings() error = %v", err)
			}
			if got.Status != tt.wantStatus {
				t.Fatalf("Status = %s, expected %s", got.Status, tt.wantStatus)
			}
			if got.ReadingCount != len(tt.readings) {
				t.Errorf("ReadingCount = %d, expected %d", got.ReadingCount, len(tt.readings))
			}
			if tt.wantStatus == WindowInsufficientData {
				if got.Period != nil || got.Sufficient() {
					t.Errorf("insufficient window carries a period: %+v", got.Period)
				}
				return
			}
			if got.Period.TotalVolume != tt.wantVolume {
				t.Errorf("TotalVolume = %v, expected %v", got.Period.TotalVolume, tt.wantVolume)
			}
			if got.Period.DurationMinutes != tt.wantDuration {
				t.Errorf("DurationMinutes = %v, expected %v", got.Period.DurationMinutes, tt.wantDuration)
			}
			if got.Period.ReadingCount != len(tt.readings) {
				t.Errorf("Period.ReadingCount = %d, expected %d", got.Period.ReadingCount, len(tt.readings))
			}
		})
	}
}

func TestAnalyzeWindowRatesExcludeBaseline(t *testing.T) {
	got, err := AnalyzeWindowReadings(series(
		[2]float64{0, 1000},
		[2]float64{60000, 1400},
		[2]float64{120000, 1800},
		[2]float64{180000, 1800},
	), RateConfig{Unit: PerMinute})
	if err != nil {
		t.Fatalf("AnalyzeWindowReadings() error = %v", err)
	}

	p := got.Period
	if p.MaxRate != 400 || p.MinRate != 0 {
		t.Errorf("max/min = %v/%v, expected 400/0", p.MaxRate, p.MinRate)
	}
	if p.AverageRate != 266.67 {
		t.Errorf("AverageRate = %v, expected 266.67", p.AverageRate)
	}
}

func TestWindowResultWithDeclaredVolume(t *testing.T) {
	got, err := AnalyzeWindowReadings(series(
		[2]float64{0, 10.5},
		[2]float64{60000, 5010.75},
	), RateConfig{})
	if err != nil {
		t.Fatalf("AnalyzeWindowReadings() error = %v", err)
	}

	got = got.WithDeclaredVolume(5000)
	if *got.DeclaredVolume != 5000 {
		t.Errorf("DeclaredVolume = %v, expected 5000", *got.DeclaredVolume)
	}
	if *got.VolumeDiscrepancy != 0.25 {
		t.Errorf("VolumeDiscrepancy = %v, expected 0.25", *got.VolumeDiscrepancy)
	}

	empty := WindowResult{Status: WindowInsufficientData}.WithDeclaredVolume(100)
	if empty.VolumeDiscrepancy != nil {
		t.Error("insufficient window reports a discrepancy")
	}
}

func TestAnalyzeWindowRejectsUnorderedReadings(t *testing.T) {
	_, err := AnalyzeWindowReadings(series([2]float64{60000, 1}, [2]float64{0, 2}), RateConfig{})
	if err == nil {
		t.Error("AnalyzeWindowReadings() accepted descending readings")
	}
}
