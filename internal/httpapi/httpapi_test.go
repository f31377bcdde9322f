package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleProcessRunRejectsNonPost(t *testing.T) {
	s := New(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/process/run", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET /process/run, got %d", rec.Code)
	}
}

func TestHandleMigrationsRunRejectsNonPost(t *testing.T) {
	s := New(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/migrations/run", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET /migrations/run, got %d", rec.Code)
	}
}

func TestHandleSearchReturnsEmptyResultsStub(t *testing.T) {
	s := New(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
}
