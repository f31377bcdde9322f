package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deusflow/newsagg/internal/metrics"
)

func TestHandleHealthReportsOKWhenHealthy(t *testing.T) {
	s := New(metrics.New(), nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a healthy instance, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", body["status"])
	}
}

func TestHandleHealthReportsErrorWhenUnhealthy(t *testing.T) {
	m := metrics.New()
	m.SetError("boom")
	s := New(m, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for an unhealthy instance, got %d", rec.Code)
	}
}

func TestHandleMetricsReturnsSnapshot(t *testing.T) {
	m := metrics.New()
	m.IncrementMessagesSent()
	s := New(m, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["messages_sent"].(float64) != 1 {
		t.Errorf("expected messages_sent=1 in snapshot, got %v", body["messages_sent"])
	}
}
