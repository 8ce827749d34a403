package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"orderlens/internal/models"
)

func TestNewSSEHandlers(t *testing.T) {
	analytics := createTestAnalytics()
	logger := testLogger()

	handlers := NewSSEHandlers(analytics, logger)

	if handlers == nil {
		t.Fatal("NewSSEHandlers() returned nil")
	}

	if handlers.analytics != analytics {
		t.Error("NewSSEHandlers() should set analytics field")
	}

	if handlers.logger != logger {
		t.Error("NewSSEHandlers() should set logger field")
	}
}

func TestSSEHandlers_renderMonthlyTable(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(), testLogger())

	testData := []models.MonthlyPurchases{
		{MonthStart: time.Date(2020, 10, 1, 0, 0, 0, 0, time.UTC), Count: 12},
		{MonthStart: time.Date(2020, 11, 1, 0, 0, 0, 0, time.UTC), Count: 7},
	}

	html, err := handlers.renderMonthlyTable(testData)
	if err != nil {
		t.Fatalf("renderMonthlyTable() failed: %v", err)
	}

	expectedContent := []string{
		`<table class="modern-table">`,
		"<thead>",
		"<th>Month</th>",
		"<th>Purchases</th>",
		"2020-10",
		"2020-11",
		"<strong>12</strong>",
		"<strong>7</strong>",
	}

	for _, content := range expectedContent {
		if !strings.Contains(html, content) {
			t.Errorf("expected HTML to contain %q", content)
		}
	}
}

func TestSSEHandlers_renderMonthlyTable_LargeDataset(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(), testLogger())

	testData := make([]models.MonthlyPurchases, 75)
	for i := range testData {
		testData[i] = models.MonthlyPurchases{
			MonthStart: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0),
			Count:      int64(i),
		}
	}

	html, err := handlers.renderMonthlyTable(testData)
	if err != nil {
		t.Fatalf("renderMonthlyTable() failed: %v", err)
	}

	rowCount := strings.Count(html, "<tr>") - 1 // Subtract header row
	if rowCount > maxTableRows {
		t.Errorf("expected max %d rows, got %d", maxTableRows, rowCount)
	}
}

func checkSSEResponse(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("expected content-type to contain 'text/event-stream', got %q", ct)
	}

	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("expected cache-control 'no-cache', got %q", cc)
	}

	if w.Body.String() == "" {
		t.Error("expected SSE response body")
	}
}

func TestSSEHandlers_HandleMonthlyPurchases(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/sse/monthly-purchases", nil)
	w := httptest.NewRecorder()

	handlers.HandleMonthlyPurchases(w, req)

	checkSSEResponse(t, w)

	if !strings.Contains(w.Body.String(), "monthly-content") {
		t.Error("expected patched monthly-content element")
	}
}

func TestSSEHandlers_HandleRefundLatency(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/sse/refund-latency", nil)
	w := httptest.NewRecorder()

	handlers.HandleRefundLatency(w, req)

	checkSSEResponse(t, w)

	body := w.Body.String()
	if !strings.Contains(body, "latencyData") {
		t.Error("expected latencyData signal in SSE stream")
	}
	if !strings.Contains(body, "latency-content") {
		t.Error("expected patched latency-content element")
	}
}

func TestSSEHandlers_HandleFirstOrders(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/sse/first-orders", nil)
	w := httptest.NewRecorder()

	handlers.HandleFirstOrders(w, req)

	checkSSEResponse(t, w)

	if !strings.Contains(w.Body.String(), "firstOrderData") {
		t.Error("expected firstOrderData signal in SSE stream")
	}
}

func TestSSEHandlers_HandleRefreshAll(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/sse/refresh-all", nil)
	w := httptest.NewRecorder()

	handlers.HandleRefreshAll(w, req)

	checkSSEResponse(t, w)

	body := w.Body.String()
	for _, signal := range []string{"latencyData", "firstOrderData", "activeStores", "topFirstItem"} {
		if !strings.Contains(body, signal) {
			t.Errorf("expected %s signal in refresh-all stream", signal)
		}
	}
}
