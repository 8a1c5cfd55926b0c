package flow

import "time"

var epoch = time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

// series builds readings for one partition from (offset ms, total) pairs.
func series(points ...[2]float64) []Reading {
	readings := make([]Reading, len(points))
	for i, p := range points {
		readings[i] = Reading{
			DeviceID:        "WM-0042",
			SlaveID:         "1",
			Timestamp:       epoch.Add(time.Duration(p[0]) * time.Millisecond),
			CumulativeTotal: p[1],
		}
	}
	return readings
}

func at(ms int64) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

func mustRate(readings []Reading, cfg RateConfig) []RatedReading {
	rated, err := DeriveRates(readings, cfg)
	if err != nil {
		panic(err)
	}
	return rated
}
