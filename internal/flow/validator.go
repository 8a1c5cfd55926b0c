package flow

import "fmt"

// PeriodRule is one plausibility check applied to a summarized period.
type PeriodRule interface {
	Name() string
	// Check returns an empty reason when the period passes.
	Check(p FlowPeriod) (reason string)
}

// Rejection records why a period was discarded as noise.
type Rejection struct {
	Period FlowPeriod
	Rule   string
	Reason string
}

// Validator drops periods that fail any of its rules. Dropped periods are
// treated as sensor noise and are not reported as errors.
type Validator struct {
	rules []PeriodRule
}

// NewValidator builds the standard rule chain from thresholds. Bounds set to
// zero are skipped; the positive-volume rule always applies.
func NewValidator(th Thresholds) *Validator {
	rules := []PeriodRule{positiveVolumeRule{}}
	if th.MinDurationMinutes > 0 {
		rules = append(rules, minDurationRule{min: th.MinDurationMinutes})
	}
	if th.MinAverageRate > 0 {
		rules = append(rules, minAverageRateRule{min: th.MinAverageRate})
	}
	if th.MaxPlausibleRate > 0 {
		rules = append(rules, maxPlausibleRateRule{max: th.MaxPlausibleRate})
	}
	if th.MinTotalVolume > 0 {
		rules = append(rules, minTotalVolumeRule{min: th.MinTotalVolume})
	}
	return &Validator{rules: rules}
}

// NewValidatorWithRules builds a validator from an explicit rule list.
func NewValidatorWithRules(rules ...PeriodRule) *Validator {
	return &Validator{rules: rules}
}

// Validate returns the periods that pass every rule, in input order.
func (v *Validator) Validate(periods []FlowPeriod) []FlowPeriod {
	kept, _ := v.Screen(periods)
	return kept
}

// Screen is Validate that also reports the first failing rule of every
// dropped period.
func (v *Validator) Screen(periods []FlowPeriod) ([]FlowPeriod, []Rejection) {
	kept := make([]FlowPeriod, 0, len(periods))
	var rejected []Rejection

	for _, p := range periods {
		passed := true
		for _, rule := range v.rules {
			if reason := rule.Check(p); reason != "" {
				rejected = append(rejected, Rejection{Period: p, Rule: rule.Name(), Reason: reason})
				passed = false
				break
			}
		}
		if passed {
			kept = append(kept, p)
		}
	}
	return kept, rejected
}

type positiveVolumeRule struct{}

func (positiveVolumeRule) Name() string { return "positive_volume" }

func (positiveVolumeRule) Check(p FlowPeriod) string {
	if p.TotalVolume > 0 {
		return ""
	}
	return fmt.Sprintf("total volume %.2f is not positive", p.TotalVolume)
}

type minDurationRule struct{ min float64 }

func (minDurationRule) Name() string { return "min_duration" }

func (r minDurationRule) Check(p FlowPeriod) string {
	if p.DurationMinutes >= r.min {
		return ""
	}
	return fmt.Sprintf("duration %.2f min below %.2f", p.DurationMinutes, r.min)
}

type minAverageRateRule struct{ min float64 }

func (minAverageRateRule) Name() string { return "min_average_rate" }

func (r minAverageRateRule) Check(p FlowPeriod) string {
	if p.AverageRate >= r.min {
		return ""
	}
	return fmt.Sprintf("average rate %.2f below %.2f", p.AverageRate, r.min)
}

type maxPlausibleRateRule struct{ max float64 }

func (maxPlausibleRateRule) Name() string { return "max_plausible_rate" }

func (r maxPlausibleRateRule) Check(p FlowPeriod) string {
	if p.MaxRate <= r.max {
		return ""
	}
	return fmt.Sprintf("peak rate %.2f above plausible ceiling %.2f", p.MaxRate, r.max)
}

type minTotalVolumeRule struct{ min float64 }

func (minTotalVolumeRule) Name() string { return "min_total_volume" }

func (r minTotalVolumeRule) Check(p FlowPeriod) string {
	if p.TotalVolume >= r.min {
		return ""
	}
	return fmt.Sprintf("total volume %.2f below %.2f", p.TotalVolume, r.min)
}
