package main

import (
	"context"
	"time"

	"github.com/chrissnell/remoteflow/internal/flow"
)

// batchSource serves per-partition lookups out of one already fetched batch.
type batchSource struct {
	keys   []flow.PartitionKey
	groups map[flow.PartitionKey][]flow.Reading
}

func newBatchSource(readings []flow.Reading) *batchSource {
	keys, groups := flow.Partition(readings)
	return &batchSource{keys: keys, groups: groups}
}

func (b *batchSource) FetchReadings(_ context.Context, key flow.PartitionKey, tr flow.TimeRange) ([]flow.Reading, error) {
	var out []flow.Reading
	for _, r := range b.groups[key] {
		if r.Timestamp.Before(tr.Start) {
			continue
		}
		if r.Timestamp.After(tr.End) {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func (b *batchSource) FetchReadingsForWindow(ctx context.Context, key flow.PartitionKey, start, end time.Time) ([]flow.Reading, error) {
	return b.FetchReadings(ctx, key, flow.TimeRange{Start: start, End: end})
}
