package flow

import "sort"

// SortReadings returns a copy of readings ordered by ascending timestamp.
// Readings sharing a timestamp keep their input order.
func SortReadings(readings []Reading) []Reading {
	sorted := append([]Reading(nil), readings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// Partition splits a mixed batch into per-partition sequences, each sorted with
// SortReadings. Keys are returned in order of first appearance.
func Partition(readings []Reading) ([]PartitionKey, map[PartitionKey][]Reading) {
	var keys []PartitionKey
	groups := make(map[PartitionKey][]Reading)
	for _, r := range readings {
		k := r.Key()
		if _, seen := groups[k]; !seen {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}
	for k, rs := range groups {
		groups[k] = SortReadings(rs)
	}
	return keys, groups
}
