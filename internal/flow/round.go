package flow

import "github.com/shopspring/decimal"

// presentationPlaces is the number of decimal places rates, volumes and
// durations are reported with.
const presentationPlaces = 2

// round2 rounds half away from zero at two decimal places. Going through
// decimal avoids float artifacts such as 1.005 rounding down.
func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(presentationPlaces).Float64()
	return f
}

// volumeBetween returns end - start computed on the decimal representation of
// both totals, so 150.3 - 100.1 is exactly 50.2 and not 50.199999999999996.
func volumeBetween(start, end float64) float64 {
	f, _ := decimal.NewFromFloat(end).Sub(decimal.NewFromFloat(start)).Round(presentationPlaces).Float64()
	return f
}

// Consumption returns the volume consumed between two cumulative totals,
// rounded for presentation.
func Consumption(first, last float64) float64 {
	return volumeBetween(first, last)
}
