package restserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chrissnell/remoteflow/internal/flow"
	"github.com/chrissnell/remoteflow/internal/storage/timescaledb"
	"github.com/chrissnell/remoteflow/pkg/config"
	"go.uber.org/zap"
)

var day = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// fakeStore serves both the analyzer's ReadingSource and the handler Store.
type fakeStore struct {
	readings []flow.Reading
	dates    []timescaledb.CaptureDate
	totals   []timescaledb.DailyTotal
	health   timescaledb.Health
	err      error

	totalsDay time.Time
	fetched   []flow.TimeRange
}

func (f *fakeStore) inRange(key flow.PartitionKey, tr flow.TimeRange) []flow.Reading {
	var out []flow.Reading
	for _, r := range f.readings {
		if r.Key() == key && !r.Timestamp.Before(tr.Start) && !r.Timestamp.After(tr.End) {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeStore) FetchReadings(_ context.Context, key flow.PartitionKey, tr flow.TimeRange) ([]flow.Reading, error) {
	f.fetched = append(f.fetched, tr)
	return f.inRange(key, tr), f.err
}

func (f *fakeStore) FetchReadingsForWindow(_ context.Context, key flow.PartitionKey, start, end time.Time) ([]flow.Reading, error) {
	return f.inRange(key, flow.TimeRange{Start: start, End: end}), f.err
}

func (f *fakeStore) FramePage(_ context.Context, key flow.PartitionKey, tr flow.TimeRange, page, limit int) (timescaledb.FramePage, error) {
	if f.err != nil {
		return timescaledb.FramePage{}, f.err
	}
	asc := f.inRange(key, tr)
	desc := reversed(asc)

	fp := timescaledb.FramePage{Total: int64(len(desc)), Page: page, Limit: limit}
	lo := (page - 1) * limit
	if lo >= len(desc) {
		return fp, nil
	}
	hi := lo + limit
	if hi > len(desc) {
		hi = len(desc)
	}
	fp.Frames = desc[lo:hi]
	if hi < len(desc) {
		prev := desc[hi]
		fp.Predecessor = &prev
	}
	return fp, nil
}

func (f *fakeStore) CaptureDates(context.Context, flow.PartitionKey) ([]timescaledb.CaptureDate, error) {
	return f.dates, f.err
}

func (f *fakeStore) DailyTotals(_ context.Context, d time.Time) ([]timescaledb.DailyTotal, error) {
	f.totalsDay = d
	return f.totals, f.err
}

func (f *fakeStore) LastHealth(context.Context) timescaledb.Health {
	return f.health
}

func meterReadings() []flow.Reading {
	mk := func(t time.Time, total float64) flow.Reading {
		return flow.Reading{DeviceID: "WM-0042", SlaveID: "1", Timestamp: t, CumulativeTotal: total}
	}
	return []flow.Reading{
		mk(at(8, 0), 100),
		mk(at(8, 1), 100),
		mk(at(8, 2), 150),
		mk(at(8, 3), 150),
		mk(at(9, 0), 150),
		mk(at(9, 10), 250),
		mk(at(9, 20), 250),
	}
}

func newTestController(t *testing.T, store *fakeStore, enableCORS bool) http.Handler {
	t.Helper()

	cfg := &config.ConfigData{}
	cfg.ApplyDefaults()
	analysis := cfg.Analysis
	analysis.DefaultPageLimit = 2

	analyzer := flow.NewAnalyzer(store, flow.Settings{
		Rate:        flow.RateConfig{Unit: flow.PerHour},
		RangeMargin: time.Hour,
		MaxRange:    31 * 24 * time.Hour,
	}, zap.NewNop().Sugar())

	ctrl, err := NewController(context.Background(), &sync.WaitGroup{},
		config.ServerData{EnableCORS: enableCORS}, analysis, analyzer, store, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return ctrl.Server.Handler
}

type envelope[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
	Msg    string `json:"msg"`
}

func do[T any](t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope[T]) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope[T]
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), err)
	}
	return rec, env
}

func TestGetFlowPeriodsByDate(t *testing.T) {
	h := newTestController(t, &fakeStore{readings: meterReadings()}, false)

	rec, env := do[periodsResponse](t, h, http.MethodPost, "/api/data/flow-periods",
		`{"productId":"WM-0042","slaveId":1,"date":"2024-03-10"}`)
	if rec.Code != http.StatusOK || env.Status != "success" {
		t.Fatalf("status %d %q: %s", rec.Code, env.Status, env.Msg)
	}

	periods := env.Data.FlowPeriods
	if len(periods) != 2 {
		t.Fatalf("got %d periods, want 2", len(periods))
	}
	// Newest first.
	if !periods[0].StartTime.Equal(at(9, 0)) || periods[0].TotalVolume != 100 {
		t.Errorf("first period = %+v", periods[0])
	}
	if !periods[1].StartTime.Equal(at(8, 1)) || periods[1].TotalVolume != 50 {
		t.Errorf("second period = %+v", periods[1])
	}
	if env.Data.SlaveID != "1" || env.Data.Date != "2024-03-10" {
		t.Errorf("echoed request = %+v", env.Data)
	}
}

func TestGetFlowPeriodsByDateFetchesWidenedDay(t *testing.T) {
	store := &fakeStore{readings: meterReadings()}
	h := newTestController(t, store, false)

	rec, _ := do[periodsResponse](t, h, http.MethodPost, "/api/data/flow-periods",
		`{"productId":"WM-0042","slaveId":"1","date":"2024-03-10"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	want := flow.DayRange(day).Widen(time.Hour)
	if len(store.fetched) != 1 || store.fetched[0] != want {
		t.Errorf("fetched %+v, want %+v", store.fetched, want)
	}
}

func TestGetFlowPeriodsByRange(t *testing.T) {
	h := newTestController(t, &fakeStore{readings: meterReadings()}, false)

	_, env := do[periodsResponse](t, h, http.MethodPost, "/api/data/flow-periods",
		`{"productId":"WM-0042","slaveId":"1","startTime":"2024-03-10T09:05:00Z","endTime":"2024-03-10T09:30:00Z"}`)
	if len(env.Data.FlowPeriods) != 1 || env.Data.FlowPeriods[0].TotalVolume != 100 {
		t.Errorf("periods = %+v, want the 09:00 period only", env.Data.FlowPeriods)
	}
}

func TestBadRequests(t *testing.T) {
	h := newTestController(t, &fakeStore{readings: meterReadings()}, false)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"missing slave", "/api/data/flow-periods", `{"productId":"WM-0042","date":"2024-03-10"}`},
		{"bad date", "/api/data/flow-periods", `{"productId":"WM-0042","slaveId":"1","date":"10/03/2024"}`},
		{"no range", "/api/data/frames", `{"productId":"WM-0042","slaveId":"1"}`},
		{"inverted range", "/api/data/frames", `{"productId":"WM-0042","slaveId":"1","startTime":"2024-03-10T10:00:00Z","endTime":"2024-03-10T09:00:00Z"}`},
		{"malformed json", "/api/data/dates", `{"productId":`},
		{"window without end", "/api/data/window", `{"productId":"WM-0042","slaveId":"1","startTime":"2024-03-10T09:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do[any](t, h, http.MethodPost, tt.path, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("code = %d, want 400", rec.Code)
			}
			if env.Status != "failed" || env.Data != nil || env.Msg == "" {
				t.Errorf("envelope = %+v", env)
			}
		})
	}
}

func TestGetFramesRatesAcrossPages(t *testing.T) {
	h := newTestController(t, &fakeStore{readings: meterReadings()}, false)

	rec, env := do[framesResponse](t, h, http.MethodPost, "/api/data/frames",
		`{"productId":"WM-0042","slaveId":"1","date":"2024-03-10"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, env.Msg)
	}
	if env.Data.TotalCount != 7 || env.Data.Limit != 2 || env.Data.Page != 1 {
		t.Errorf("paging = %d/%d/%d", env.Data.TotalCount, env.Data.Limit, env.Data.Page)
	}
	frames := env.Data.Data
	if len(frames) != 2 {
		t.Fatalf("got %d frames", len(frames))
	}
	if !frames[0].Timestamp.Equal(at(9, 20)) || frames[0].InstantaneousRate != 0 {
		t.Errorf("newest frame = %+v", frames[0])
	}
	// Seeded by the 09:00 reading on the next page: 100 over 10 minutes.
	if !frames[1].Timestamp.Equal(at(9, 10)) || frames[1].InstantaneousRate != 600 {
		t.Errorf("second frame = %+v", frames[1])
	}

	_, env = do[framesResponse](t, h, http.MethodPost, "/api/data/frames",
		`{"productId":"WM-0042","slaveId":"1","date":"2024-03-10","page":4}`)
	if len(env.Data.Data) != 1 || env.Data.Data[0].InstantaneousRate != 0 {
		t.Errorf("last page = %+v", env.Data.Data)
	}
}

func TestGetWindow(t *testing.T) {
	h := newTestController(t, &fakeStore{readings: meterReadings()}, false)

	_, env := do[windowResponse](t, h, http.MethodPost, "/api/data/window",
		`{"productId":"WM-0042","slaveId":"1","startTime":"2024-03-10T09:00:00Z","endTime":"2024-03-10T09:20:00Z","declaredVolume":110}`)
	if env.Data.Status != flow.WindowOK || env.Data.Period == nil {
		t.Fatalf("window = %+v", env.Data)
	}
	if env.Data.Period.TotalVolume != 100 || env.Data.ReadingCount != 3 {
		t.Errorf("period = %+v", env.Data.Period)
	}
	if env.Data.VolumeDiscrepancy == nil || *env.Data.VolumeDiscrepancy != -10 {
		t.Errorf("discrepancy = %v, want -10", env.Data.VolumeDiscrepancy)
	}

	rec, env := do[windowResponse](t, h, http.MethodPost, "/api/data/window",
		`{"productId":"WM-0042","slaveId":"1","startTime":"2024-03-10T09:05:00Z","endTime":"2024-03-10T09:15:00Z"}`)
	if rec.Code != http.StatusOK || env.Data.Status != flow.WindowInsufficientData || env.Data.Period != nil {
		t.Errorf("single-reading window: code %d, data %+v", rec.Code, env.Data)
	}
}

func TestGetDatesAndDailyTotals(t *testing.T) {
	store := &fakeStore{
		dates:  []timescaledb.CaptureDate{{Date: "2024-03-09", Count: 1440}, {Date: "2024-03-10", Count: 7}},
		totals: []timescaledb.DailyTotal{{DeviceID: "WM-0042", SlaveID: "1", FirstTotal: 100, LastTotal: 250, Consumption: 150}},
	}
	h := newTestController(t, store, false)

	_, dates := do[datesResponse](t, h, http.MethodPost, "/api/data/dates", `{"productId":"WM-0042","slaveId":"1"}`)
	if len(dates.Data.Dates) != 2 || dates.Data.Dates[1].Count != 7 {
		t.Errorf("dates = %+v", dates.Data)
	}

	_, totals := do[dailyTotalsResponse](t, h, http.MethodGet, "/api/data/daily-totals?date=2024-03-10", "")
	if totals.Data.Date != "2024-03-10" || len(totals.Data.Totals) != 1 || totals.Data.Totals[0].Consumption != 150 {
		t.Errorf("totals = %+v", totals.Data)
	}
	if !store.totalsDay.Equal(day) {
		t.Errorf("store queried for %v, want %v", store.totalsDay, day)
	}

	rec, _ := do[any](t, h, http.MethodGet, "/api/data/daily-totals?date=yesterday", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date code = %d", rec.Code)
	}
}

func TestStoreFailureIsInternalError(t *testing.T) {
	h := newTestController(t, &fakeStore{err: errors.New("connection refused")}, false)

	rec, env := do[any](t, h, http.MethodPost, "/api/data/dates", `{"productId":"WM-0042","slaveId":"1"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", rec.Code)
	}
	if strings.Contains(env.Msg, "connection refused") {
		t.Errorf("internal error leaked to client: %q", env.Msg)
	}
}

func TestHealth(t *testing.T) {
	store := &fakeStore{health: timescaledb.Health{Status: "unhealthy", Message: "Database ping failed"}}
	h := newTestController(t, store, false)

	rec, env := do[timescaledb.Health](t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable || env.Data.Status != "unhealthy" {
		t.Errorf("code %d, data %+v", rec.Code, env.Data)
	}

	store.health = timescaledb.Health{Status: "healthy", Message: "TimescaleDB operational"}
	rec, _ = do[timescaledb.Health](t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("healthy code = %d", rec.Code)
	}
}

func TestMiddleware(t *testing.T) {
	h := newTestController(t, &fakeStore{readings: meterReadings()}, true)

	req := httptest.NewRequest(http.MethodPost, "/api/data/dates", strings.NewReader(`{"productId":"WM-0042","slaveId":"1"}`))
	req.Header.Set("Origin", "http://dashboard.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("missing request ID header")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/data/dates", strings.NewReader(`{"productId":"WM-0042","slaveId":"1"}`))
	req.Header.Set(requestIDHeader, "0b6a3c59-86a1-4b8c-9d38-2f7d1f0f5a11")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "0b6a3c59-86a1-4b8c-9d38-2f7d1f0f5a11" {
		t.Errorf("request ID = %q, want the caller's", got)
	}
}

func TestMeterIDUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    meterID
		wantErr bool
	}{
		{`"3"`, "3", false},
		{`3`, "3", false},
		{`null`, "", false},
		{`true`, "", true},
	}
	for _, tt := range tests {
		var got meterID
		err := json.Unmarshal([]byte(tt.in), &got)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("Unmarshal(%s) = %q, %v", tt.in, got, err)
		}
	}
}
