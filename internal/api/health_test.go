package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Ensure NewHealthHandler constructs without args and CheckHealth responds
func TestHealthHandler_CheckHealth(t *testing.T) {
	h := NewHealthHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	h.CheckHealth(w, req)
	if code := w.Result().StatusCode; code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", code)
	}
}

func TestHealthHandler_ReflectsBoundHealth(t *testing.T) {
	defer BindServiceHealth(func() bool { return false })

	BindServiceHealth(func() bool { return true })
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	NewHealthHandler().CheckHealth(w, req)
	if body := w.Body.String(); !strings.Contains(body, `"healthy"`) {
		t.Fatalf("expected healthy status, got %s", body)
	}
}
