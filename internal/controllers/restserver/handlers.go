package restserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/chrissnell/remoteflow/internal/flow"
	"github.com/chrissnell/remoteflow/internal/log"
	"github.com/chrissnell/remoteflow/pkg/responseformat"
)

const maxRequestBody = 1 << 20

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// GetFrames returns a page of raw readings, newest first, each with the
// rate derived from the reading before it
func (h *Handlers) GetFrames(w http.ResponseWriter, req *http.Request) {
	var body framesRequest
	if err := decodeBody(req, &body); err != nil {
		h.sendError(w, req, err)
		return
	}

	key, err := body.key()
	if err != nil {
		h.sendError(w, req, err)
		return
	}

	margin := h.controller.analysis.FrameMargin()
	tr, err := body.timeRange(margin)
	if err != nil {
		h.sendError(w, req, err)
		return
	}

	limit, page := h.paging(body.Limit, body.Page)

	fp, err := h.controller.store.FramePage(req.Context(), key, tr, page, limit)
	if err != nil {
		h.sendError(w, req, err)
		return
	}

	// Rates are derived oldest first, then presented newest first
	ascending := reversed(fp.Frames)
	rated, err := h.controller.analyzer.RateFrames(ascending, fp.Predecessor)
	if err != nil {
		h.sendError(w, req, err)
		return
	}

	h.formatter.Success(w, req, framesResponse{
		TotalCount: fp.Total,
		Limit:      limit,
		Page:       page,
		Data:       reversed(rated),
	}, "Data retrieved successfully")
}

// GetFlowPeriods returns the validated flow periods for a day or range,
// newest first
func (h *Handlers) GetFlowPeriods(w http.ResponseWriter, req *http.Request) {
	var body periodsRequest
	if err := decodeBody(req, &body); err != nil {
		h.sendError(w, req, err)
		return
	}

	key, err := body.key()
	if err != nil {
		h.sendError(w, req, err)
		return
	}

	periods, err := h.periods(req.Context(), key, body.rangeRequest)
	if err != nil {
		h.sendError(w, req, err)
		return
	}

	sort.SliceStable(periods, func(i, j int) bool {
		return periods[i].StartTime.After(periods[j].StartTime)
	})

	h.formatter.Success(w, req, periodsResponse{
		ProductID:   key.DeviceID,
		SlaveID:     key.SlaveID,
		Date:        body.Date,
		FlowPeriods: periods,
	}, "Flow periods retrieved successfully")
}

// periods runs day segmentation for a date request and range segmentation
// otherwise. The analyzer applies its own range margin.
func (h *Handlers) periods(ctx context.Context, key flow.PartitionKey, r rangeRequest) ([]flow.FlowPeriod, error) {
	analyzer := h.controller.analyzer
	if r.Date != "" {
		day, err := parseDay(r.Date)
		if err != nil {
			return nil, err
		}
		return analyzer.DayPeriods(ctx, key, day)
	}

	tr, err := r.timeRange(0)
	if err != nil {
		return nil, err
	}
	return analyzer.Periods(ctx, key, tr)
}

// GetDates returns the days on which a meter reported, with frame counts
func (h *Handlers) GetDates(w http.ResponseWriter, req *http.Request) {
	var body partitionRequest
	if err := decodeBody(req, &body); err != nil {
		h.sendError(w, req, err)
		return
	}

	key, err := body.key()
	if err != nil {
		h.sendError(w, req, err)
		return
	}

	dates, err := h.controller.store.CaptureDates(req.Context(), key)
	if err != nil {
		h.sendError(w, req, err)
		return
	}

	h.formatter.Success(w, req, datesResponse{
		ProductID: key.DeviceID,
		SlaveID:   key.SlaveID,
		Dates:     dates,
	}, "Dates retrieved successfully")
}

// GetWindow summarizes the readings inside a bounded window, such as a
// tanker fill, as a single period
func (h *Handlers) GetWindow(w http.ResponseWriter, req *http.Request) {
	var body windowRequest
	if err := decodeBody(req, &body); err != nil {
		h.sendError(w, req, err)
		return
	}

	key, err := body.key()
	if err != nil {
		h.sendError(w, req, err)
		return
	}
	if body.StartTime == nil || body.EndTime == nil {
		h.sendError(w, req, fmt.Errorf("startTime and endTime are required: %w", flow.ErrInvalidInput))
		return
	}
	start, end := body.StartTime.UTC(), body.EndTime.UTC()

	result, err := h.controller.analyzer.AnalyzeWindow(req.Context(), key, start, end)
	if err != nil {
		h.sendError(w, req, err)
		return
	}
	if body.DeclaredVolume != nil {
		result = result.WithDeclaredVolume(*body.DeclaredVolume)
	}

	msg := "Window analyzed successfully"
	if !result.Sufficient() {
		msg = "Not enough readings in window"
	}

	h.formatter.Success(w, req, windowResponse{
		ProductID:    key.DeviceID,
		SlaveID:      key.SlaveID,
		StartTime:    start,
		EndTime:      end,
		WindowResult: result,
	}, msg)
}

// GetDailyTotals returns each meter's consumption for a UTC day, defaulting to today
func (h *Handlers) GetDailyTotals(w http.ResponseWriter, req *http.Request) {
	day := time.Now().UTC()
	if d := req.URL.Query().Get("date"); d != "" {
		var err error
		if day, err = parseDay(d); err != nil {
			h.sendError(w, req, err)
			return
		}
	}

	totals, err := h.controller.store.DailyTotals(req.Context(), day)
	if err != nil {
		h.sendError(w, req, err)
		return
	}

	h.formatter.Success(w, req, dailyTotalsResponse{
		Date:   day.Format(dateLayout),
		Totals: totals,
	}, "Daily totals retrieved successfully")
}

// GetHealth reports the storage health recorded by the health monitor
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	health := h.controller.store.LastHealth(req.Context())
	if !health.Healthy() {
		h.formatter.WriteResponse(w, req, http.StatusServiceUnavailable, responseformat.Envelope{
			Status: responseformat.StatusFailed,
			Data:   health,
			Msg:    health.Message,
		})
		return
	}
	h.formatter.Success(w, req, health, health.Message)
}

func (h *Handlers) paging(limit, page int) (int, int) {
	a := h.controller.analysis
	if limit <= 0 {
		limit = a.DefaultPageLimit
	}
	if a.MaxPageLimit > 0 && limit > a.MaxPageLimit {
		limit = a.MaxPageLimit
	}
	if limit <= 0 {
		limit = 1
	}
	if page <= 0 {
		page = 1
	}
	return limit, page
}

// sendError maps invalid input to 400 and everything else to 500
func (h *Handlers) sendError(w http.ResponseWriter, req *http.Request, err error) {
	logger := log.FromContext(req.Context(), h.controller.logger)

	if errors.Is(err, flow.ErrInvalidInput) {
		logger.Debugw("rejected request", "path", req.URL.Path, "error", err)
		h.formatter.Failure(w, req, http.StatusBadRequest, err.Error())
		return
	}

	logger.Errorw("request failed", "path", req.URL.Path, "error", err)
	h.formatter.Failure(w, req, http.StatusInternalServerError, "Internal Server Error")
}

func decodeBody(req *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(req.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v: %w", err, flow.ErrInvalidInput)
	}
	return nil
}

func reversed[T any](in []T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
