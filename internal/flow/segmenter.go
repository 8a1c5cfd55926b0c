package flow

// Thresholds holds every tunable bound used by segmentation and validation.
// Noise profiles differ between meter models, so none of these are constants.
type Thresholds struct {
	// A reading opens a period when its rate is strictly greater than
	// FlowStartThreshold, and keeps it open while its rate is strictly greater
	// than FlowContinueThreshold. A rate at or below FlowContinueThreshold
	// closes the period.
	FlowStartThreshold    float64 `json:"flow_start_threshold" yaml:"flow-start-threshold"`
	FlowContinueThreshold float64 `json:"flow_continue_threshold" yaml:"flow-continue-threshold"`

	// Validation bounds. A zero value disables the bound.
	MinDurationMinutes float64 `json:"min_duration_minutes" yaml:"min-duration-minutes"`
	MinAverageRate     float64 `json:"min_average_rate" yaml:"min-average-rate"`
	MaxPlausibleRate   float64 `json:"max_plausible_rate" yaml:"max-plausible-rate"`
	MinTotalVolume     float64 `json:"min_total_volume" yaml:"min-total-volume"`
}

// Interval is a run of flowing readings emitted by the segmenter.
type Interval struct {
	// Baseline is the reading immediately before the first member. The first
	// member's rate describes the span from Baseline to itself, so the period
	// starts at Baseline. HasBaseline is false when the first member is the
	// first reading of the sequence.
	Baseline    RatedReading
	HasBaseline bool

	Readings []RatedReading

	// Open is true when the sequence ended while still flowing.
	Open bool
}

type segmentMode int

const (
	idle segmentMode = iota
	flowing
)

// segmentState is the accumulator folded over the rated sequence.
type segmentState struct {
	mode      segmentMode
	prev      *RatedReading
	buffer    Interval
	intervals []Interval
}

// step consumes one reading and returns the next state.
func (s segmentState) step(r RatedReading, th Thresholds) segmentState {
	switch s.mode {
	case idle:
		if r.InstantaneousRate > th.FlowStartThreshold {
			s.mode = flowing
			s.buffer = Interval{Readings: []RatedReading{r}}
			if s.prev != nil {
				s.buffer.Baseline = *s.prev
				s.buffer.HasBaseline = true
			}
		}
	case flowing:
		if r.InstantaneousRate > th.FlowContinueThreshold {
			s.buffer.Readings = append(s.buffer.Readings, r)
		} else {
			s.intervals = append(s.intervals, s.buffer)
			s.buffer = Interval{}
			s.mode = idle
		}
	}
	s.prev = &r
	return s
}

// finish flushes a still-open buffer as an unterminated interval.
func (s segmentState) finish() []Interval {
	if s.mode == flowing && len(s.buffer.Readings) > 0 {
		s.buffer.Open = true
		s.intervals = append(s.intervals, s.buffer)
	}
	return s.intervals
}

// Segment partitions a rated sequence into flowing intervals. It depends only
// on the rates and thresholds, so identical input always yields identical
// output, ordered by start time.
func Segment(rated []RatedReading, th Thresholds) []Interval {
	var s segmentState
	for _, r := range rated {
		s = s.step(r, th)
	}
	return s.finish()
}

// SegmentPeriods runs segmentation, summarization and validation over one
// partition's rated readings and returns the surviving periods ordered by
// start time.
func SegmentPeriods(rated []RatedReading, th Thresholds) []FlowPeriod {
	intervals := Segment(rated, th)
	periods := make([]FlowPeriod, 0, len(intervals))
	for _, iv := range intervals {
		periods = append(periods, SummarizeInterval(iv))
	}
	return NewValidator(th).Validate(periods)
}
