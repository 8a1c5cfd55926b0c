package flow

// WindowStatus tells whether a window produced statistics.
type WindowStatus string

const (
	WindowOK               WindowStatus = "ok"
	WindowInsufficientData WindowStatus = "insufficient_data"
)

// WindowResult is the outcome of analyzing one externally bounded window.
// Period is nil when Status is WindowInsufficientData.
type WindowResult struct {
	Status       WindowStatus `json:"status"`
	ReadingCount int          `json:"readingCount"`
	Period       *FlowPeriod  `json:"period,omitempty"`

	DeclaredVolume    *float64 `json:"declaredVolume,omitempty"`
	VolumeDiscrepancy *float64 `json:"volumeDiscrepancy,omitempty"`
}

// Sufficient reports whether the window held enough readings for statistics.
func (w WindowResult) Sufficient() bool {
	return w.Status == WindowOK && w.Period != nil
}

// WithDeclaredVolume attaches the volume a caller claims was dispensed (for
// example a tanker's stated load) and the measured minus declared difference.
func (w WindowResult) WithDeclaredVolume(declared float64) WindowResult {
	w.DeclaredVolume = &declared
	if w.Period != nil {
		diff := volumeBetween(declared, w.Period.TotalVolume)
		w.VolumeDiscrepancy = &diff
	}
	return w
}

// AnalyzeWindowReadings summarizes every reading of a window as a single
// period. No segmentation or validation is applied: the caller has already
// decided the window is meaningful. The first reading in the window is the
// baseline; fewer than two readings yield WindowInsufficientData.
func AnalyzeWindowReadings(readings []Reading, cfg RateConfig) (WindowResult, error) {
	if len(readings) < 2 {
		return WindowResult{Status: WindowInsufficientData, ReadingCount: len(readings)}, nil
	}

	rated, err := DeriveRates(readings, cfg)
	if err != nil {
		return WindowResult{}, err
	}

	period := SummarizeInterval(Interval{
		Baseline:    rated[0],
		HasBaseline: true,
		Readings:    rated[1:],
	})

	return WindowResult{
		Status:       WindowOK,
		ReadingCount: len(readings),
		Period:       &period,
	}, nil
}
