package protocol

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPStatsHealthz(t *testing.T) {
	d := newTestDispatcher(t)
	h := NewHTTPStats(d)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHTTPStatsStats(t *testing.T) {
	d := newTestDispatcher(t)
	h := NewHTTPStats(d)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.System.NumStations != 1 {
		t.Fatalf("expected 1 station (GRAND_CENTRAL), got %d", resp.System.NumStations)
	}
}

func TestHTTPStatsHistogramDefaultBuckets(t *testing.T) {
	d := newTestDispatcher(t)
	h := NewHTTPStats(d)

	req := httptest.NewRequest(http.MethodGet, "/histogram", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var hist []int
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(hist) != sysHistogramBuckets {
		t.Fatalf("expected %d buckets, got %d", sysHistogramBuckets, len(hist))
	}
}

func TestHTTPStatsHistogramCustomBuckets(t *testing.T) {
	d := newTestDispatcher(t)
	h := NewHTTPStats(d)

	req := httptest.NewRequest(http.MethodGet, "/histogram?buckets=4", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var hist []int
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(hist) != 4 {
		t.Fatalf("expected 4 buckets, got %d", len(hist))
	}
}
