package restserver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chrissnell/remoteflow/internal/flow"
	"github.com/chrissnell/remoteflow/internal/storage/timescaledb"
)

// meterID accepts either a JSON string or a JSON number; meters report
// slave IDs both ways.
type meterID string

func (m *meterID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = meterID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*m = meterID(n.String())
	return nil
}

type partitionRequest struct {
	ProductID string  `json:"productId"`
	SlaveID   meterID `json:"slaveId"`
}

func (p partitionRequest) key() (flow.PartitionKey, error) {
	if p.ProductID == "" || p.SlaveID == "" {
		return flow.PartitionKey{}, fmt.Errorf("productId and slaveId are required: %w", flow.ErrInvalidInput)
	}
	return flow.PartitionKey{DeviceID: p.ProductID, SlaveID: string(p.SlaveID)}, nil
}

// rangeRequest selects either a whole UTC day or an explicit range.
type rangeRequest struct {
	Date      string     `json:"date,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

const dateLayout = "2006-01-02"

func parseDay(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is not YYYY-MM-DD: %w", s, flow.ErrInvalidInput)
	}
	return d, nil
}

// timeRange resolves the request. An explicit range is widened by margin;
// a day is not.
func (r rangeRequest) timeRange(margin time.Duration) (flow.TimeRange, error) {
	if r.Date != "" {
		d, err := parseDay(r.Date)
		if err != nil {
			return flow.TimeRange{}, err
		}
		return flow.DayRange(d), nil
	}
	if r.StartTime == nil || r.EndTime == nil {
		return flow.TimeRange{}, fmt.Errorf("either date or both startTime and endTime are required: %w", flow.ErrInvalidInput)
	}

	tr := flow.TimeRange{Start: r.StartTime.UTC(), End: r.EndTime.UTC()}
	if err := tr.Validate(); err != nil {
		return flow.TimeRange{}, err
	}
	return tr.Widen(margin), nil
}

type framesRequest struct {
	partitionRequest
	rangeRequest
	Limit int `json:"limit,omitempty"`
	Page  int `json:"page,omitempty"`
}

type framesResponse struct {
	TotalCount int64               `json:"totalCount"`
	Limit      int                 `json:"limit"`
	Page       int                 `json:"page"`
	Data       []flow.RatedReading `json:"data"`
}

type periodsRequest struct {
	partitionRequest
	rangeRequest
}

type periodsResponse struct {
	ProductID   string            `json:"productId"`
	SlaveID     string            `json:"slaveId"`
	Date        string            `json:"date,omitempty"`
	FlowPeriods []flow.FlowPeriod `json:"flowPeriods"`
}

type datesResponse struct {
	ProductID string                    `json:"productId"`
	SlaveID   string                    `json:"slaveId"`
	Dates     []timescaledb.CaptureDate `json:"dates"`
}

type windowRequest struct {
	partitionRequest
	StartTime      *time.Time `json:"startTime"`
	EndTime        *time.Time `json:"endTime"`
	DeclaredVolume *float64   `json:"declaredVolume,omitempty"`
}

type windowResponse struct {
	ProductID string    `json:"productId"`
	SlaveID   string    `json:"slaveId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	flow.WindowResult
}

type dailyTotalsResponse struct {
	Date   string                   `json:"date"`
	Totals []timescaledb.DailyTotal `json:"totals"`
}
