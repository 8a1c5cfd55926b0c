package main

import (
	"context"
	"time"

	"github.com/chrissnell/remoteflow/internal/flow"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxSource reads meter readings straight from the pool for one-off exports
type pgxSource struct {
	pool *pgxpool.Pool
}

type readingRow struct {
	Timestamp time.Time `db:"timestamp"`
	TotalFlow float64   `db:"total_flow"`
}

type deviceRow struct {
	SlaveID   string    `db:"slave_id"`
	Timestamp time.Time `db:"timestamp"`
	TotalFlow float64   `db:"total_flow"`
}

const readingsQuery = `
	SELECT timestamp, total_flow
	FROM water_sensor_data
	WHERE product_id = $1 AND slave_id = $2
	  AND timestamp >= $3 AND timestamp <= $4
	ORDER BY timestamp ASC`

const deviceReadingsQuery = `
	SELECT slave_id, timestamp, total_flow
	FROM water_sensor_data
	WHERE product_id = $1
	  AND timestamp >= $2 AND timestamp <= $3
	ORDER BY timestamp ASC`

func (s *pgxSource) FetchReadings(ctx context.Context, key flow.PartitionKey, tr flow.TimeRange) ([]flow.Reading, error) {
	rows, err := s.pool.Query(ctx, readingsQuery, key.DeviceID, key.SlaveID, tr.Start, tr.End)
	if err != nil {
		return nil, err
	}

	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[readingRow])
	if err != nil {
		return nil, err
	}

	readings := make([]flow.Reading, len(collected))
	for i, r := range collected {
		readings[i] = flow.Reading{
			DeviceID:        key.DeviceID,
			SlaveID:         key.SlaveID,
			Timestamp:       r.Timestamp.UTC(),
			CumulativeTotal: r.TotalFlow,
		}
	}
	return readings, nil
}

func (s *pgxSource) FetchReadingsForWindow(ctx context.Context, key flow.PartitionKey, start, end time.Time) ([]flow.Reading, error) {
	return s.FetchReadings(ctx, key, flow.TimeRange{Start: start, End: end})
}

// FetchDevice returns every sub-meter's readings for productID inside tr as
// one mixed batch.
func (s *pgxSource) FetchDevice(ctx context.Context, productID string, tr flow.TimeRange) ([]flow.Reading, error) {
	rows, err := s.pool.Query(ctx, deviceReadingsQuery, productID, tr.Start, tr.End)
	if err != nil {
		return nil, err
	}

	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[deviceRow])
	if err != nil {
		return nil, err
	}

	readings := make([]flow.Reading, len(collected))
	for i, r := range collected {
		readings[i] = flow.Reading{
			DeviceID:        productID,
			SlaveID:         r.SlaveID,
			Timestamp:       r.Timestamp.UTC(),
			CumulativeTotal: r.TotalFlow,
		}
	}
	return readings, nil
}
