package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/chrissnell/remoteflow/internal/flow"
)

type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// partitionPeriods is the export unit for one sub-meter.
type partitionPeriods struct {
	ProductID   string            `json:"productId"`
	SlaveID     string            `json:"slaveId"`
	FlowPeriods []flow.FlowPeriod `json:"flowPeriods"`
}

func writePeriods(w io.Writer, format ExportFormat, parts []partitionPeriods) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(parts)
	case FormatCSV:
		cw := csv.NewWriter(w)
		header := []string{"product_id", "slave_id", "start_time", "end_time", "duration_minutes",
			"total_volume", "avg_flow_rate", "max_flow_rate", "min_flow_rate", "reading_count", "unterminated"}
		if err := cw.Write(header); err != nil {
			return err
		}
		for _, part := range parts {
			for _, p := range part.FlowPeriods {
				record := []string{
					part.ProductID,
					part.SlaveID,
					p.StartTime.Format(time.RFC3339),
					p.EndTime.Format(time.RFC3339),
					fmt.Sprintf("%.2f", p.DurationMinutes),
					fmt.Sprintf("%.2f", p.TotalVolume),
					fmt.Sprintf("%.2f", p.AverageRate),
					fmt.Sprintf("%.2f", p.MaxRate),
					fmt.Sprintf("%.2f", p.MinRate),
					fmt.Sprintf("%d", p.ReadingCount),
					fmt.Sprintf("%t", p.Unterminated),
				}
				if err := cw.Write(record); err != nil {
					return err
				}
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeFrames(w io.Writer, format ExportFormat, frames []flow.RatedReading) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(frames)
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"product_id", "slave_id", "timestamp", "total_flow", "instantaneous_rate", "elapsed_ms"}); err != nil {
			return err
		}
		for _, f := range frames {
			record := []string{
				f.DeviceID,
				f.SlaveID,
				f.Timestamp.Format(time.RFC3339Nano),
				fmt.Sprintf("%g", f.CumulativeTotal),
				fmt.Sprintf("%.2f", f.InstantaneousRate),
				fmt.Sprintf("%d", f.ElapsedMillis),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}
