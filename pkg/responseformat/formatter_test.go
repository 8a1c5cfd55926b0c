package responseformat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

type payload struct {
	DeviceID string  `json:"productId"`
	Volume   float64 `json:"totalVolume"`
}

func TestSuccessJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/data/daily-totals", nil)

	if err := NewFormatter().Success(rec, req, payload{"WM-1", 12.5}, "ok"); err != nil {
		t.Fatalf("Success: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var got struct {
		Status string  `json:"status"`
		Data   payload `json:"data"`
		Msg    string  `json:"msg"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != StatusSuccess || got.Data.DeviceID != "WM-1" || got.Data.Volume != 12.5 || got.Msg != "ok" {
		t.Errorf("envelope = %+v", got)
	}
}

func TestFailureMsgPack(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/data/daily-totals?format=msgpack", nil)

	if err := NewFormatter().Failure(rec, req, http.StatusBadRequest, "bad date"); err != nil {
		t.Fatalf("Failure: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-msgpack" {
		t.Errorf("content type = %q", ct)
	}

	var got map[string]any
	if err := msgpack.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["status"] != StatusFailed || got["msg"] != "bad date" || got["data"] != nil {
		t.Errorf("envelope = %+v", got)
	}
}
