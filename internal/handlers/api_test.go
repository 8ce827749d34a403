package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orderlens/internal/models"
	"orderlens/internal/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func createTestAnalytics() *services.Analytics {
	a := services.NewAnalytics(services.Params{
		TargetMonth:  time.Date(2020, 10, 1, 0, 0, 0, 0, time.UTC),
		MinOrders:    2,
		RefundWindow: 72 * time.Hour,
	})

	refund := time.Date(2020, 10, 3, 9, 0, 0, 0, time.UTC)
	a.SetData([]models.Transaction{
		{
			BuyerID:      "b1",
			StoreID:      "s1",
			ItemID:       "i1",
			PurchaseTime: time.Date(2020, 10, 1, 8, 0, 0, 0, time.UTC),
			GrossValue:   decimal.RequireFromString("19.99"),
		},
		{
			BuyerID:      "b1",
			StoreID:      "s1",
			ItemID:       "i2",
			PurchaseTime: time.Date(2020, 10, 2, 9, 0, 0, 0, time.UTC),
			RefundTime:   &refund,
			GrossValue:   decimal.RequireFromString("5.50"),
		},
		{
			BuyerID:      "b1",
			StoreID:      "s2",
			ItemID:       "i1",
			PurchaseTime: time.Date(2020, 10, 4, 9, 0, 0, 0, time.UTC),
			GrossValue:   decimal.RequireFromString("42.00"),
		},
		{
			BuyerID:      "b2",
			StoreID:      "s1",
			ItemID:       "i1",
			PurchaseTime: time.Date(2020, 11, 1, 10, 0, 0, 0, time.UTC),
			GrossValue:   decimal.RequireFromString("9.99"),
		},
	}, []models.Item{
		{StoreID: "s1", ItemID: "i1", Category: "audio", Name: "headphones"},
		{StoreID: "s1", ItemID: "i2", Category: "audio", Name: "speaker"},
	})
	return a
}

func TestNewAPIHandlers(t *testing.T) {
	analytics := createTestAnalytics()
	handlers := NewAPIHandlers(analytics, testLogger())

	if handlers == nil {
		t.Fatal("NewAPIHandlers() returned nil")
	}

	if handlers.analytics != analytics {
		t.Error("NewAPIHandlers() should set analytics field")
	}
}

func decodeSuccess(t *testing.T, w *httptest.ResponseRecorder) any {
	t.Helper()

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if success, ok := response["success"].(bool); !ok || !success {
		t.Fatal("expected success=true in response")
	}
	return response["data"]
}

func TestAPIHandlers_HandleMonthlyPurchases(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/monthly-purchases", nil)
	w := httptest.NewRecorder()

	handlers.HandleMonthlyPurchases(w, req)

	if cc := w.Header().Get("Cache-Control"); cc != "public, max-age=300" {
		t.Errorf("cache-control = %q, want 'public, max-age=300'", cc)
	}

	data, ok := decodeSuccess(t, w).([]any)
	if !ok {
		t.Fatal("expected data array in response")
	}
	// October and November buckets, refunded row excluded
	if len(data) != 2 {
		t.Fatalf("expected 2 months, got %d", len(data))
	}

	first, ok := data[0].(map[string]any)
	if !ok {
		t.Fatal("invalid month row structure")
	}
	if count, ok := first["purchase_count"].(float64); !ok || count != 2 {
		t.Errorf("october purchase_count = %v, want 2", first["purchase_count"])
	}
}

func TestAPIHandlers_HandleActiveStores(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/active-stores", nil)
	w := httptest.NewRecorder()

	handlers.HandleActiveStores(w, req)

	data, ok := decodeSuccess(t, w).(map[string]any)
	if !ok {
		t.Fatal("expected summary object in response")
	}
	// s1 has 2 October orders (refund included), s2 has 1; threshold is 2
	if count, ok := data["store_count"].(float64); !ok || count != 1 {
		t.Errorf("store_count = %v, want 1", data["store_count"])
	}
}

func TestAPIHandlers_HandleRefundLatency(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/refund-latency", nil)
	w := httptest.NewRecorder()

	handlers.HandleRefundLatency(w, req)

	data, ok := decodeSuccess(t, w).([]any)
	if !ok {
		t.Fatal("expected data array in response")
	}
	if len(data) != 1 {
		t.Fatalf("expected 1 refunding store, got %d", len(data))
	}

	row := data[0].(map[string]any)
	if row["store_id"] != "s1" {
		t.Errorf("store_id = %v, want s1", row["store_id"])
	}
	if minutes, ok := row["min_refund_interval_minutes"].(float64); !ok || minutes != 24*60 {
		t.Errorf("min minutes = %v, want %d", row["min_refund_interval_minutes"], 24*60)
	}
}

func TestAPIHandlers_HandleFirstOrders(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/first-orders", nil)
	w := httptest.NewRecorder()

	handlers.HandleFirstOrders(w, req)

	data, ok := decodeSuccess(t, w).([]any)
	if !ok {
		t.Fatal("expected data array in response")
	}
	if len(data) != 2 {
		t.Fatalf("expected one first order per store, got %d rows", len(data))
	}
}

func TestAPIHandlers_HandleTopFirstItem(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/top-first-item", nil)
	w := httptest.NewRecorder()

	handlers.HandleTopFirstItem(w, req)

	data, ok := decodeSuccess(t, w).(map[string]any)
	if !ok {
		t.Fatal("expected item object in response")
	}
	if data["item_name"] != "headphones" {
		t.Errorf("item_name = %v, want headphones", data["item_name"])
	}
}

func TestAPIHandlers_HandleTopFirstItem_EmptySnapshot(t *testing.T) {
	analytics := services.NewAnalytics(services.Params{
		TargetMonth:  time.Date(2020, 10, 1, 0, 0, 0, 0, time.UTC),
		MinOrders:    5,
		RefundWindow: 72 * time.Hour,
	})
	handlers := NewAPIHandlers(analytics, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/top-first-item", nil)
	w := httptest.NewRecorder()

	handlers.HandleTopFirstItem(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAPIHandlers_HandleRefundEligibility(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/refund-eligibility", nil)
	w := httptest.NewRecorder()

	handlers.HandleRefundEligibility(w, req)

	data, ok := decodeSuccess(t, w).([]any)
	if !ok {
		t.Fatal("expected data array in response")
	}
	if len(data) != 4 {
		t.Fatalf("every transaction must be classified, got %d of 4", len(data))
	}

	labels := map[string]int{}
	for _, raw := range data {
		row := raw.(map[string]any)
		label, _ := row["refund_eligibility"].(string)
		labels[label]++
	}
	if labels["Refund_Allowed"] != 1 || labels["No_Refund"] != 3 {
		t.Errorf("label distribution = %v, want 1 Refund_Allowed and 3 No_Refund", labels)
	}
}

func TestAPIHandlers_HandleSecondPurchases(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/second-purchases", nil)
	w := httptest.NewRecorder()

	handlers.HandleSecondPurchases(w, req)

	data, ok := decodeSuccess(t, w).([]any)
	if !ok {
		t.Fatal("expected data array in response")
	}
	// Only b1 has two non-refunded purchases
	if len(data) != 1 {
		t.Fatalf("expected 1 rank-2 row, got %d", len(data))
	}

	row := data[0].(map[string]any)
	if row["buyer_id"] != "b1" {
		t.Errorf("buyer_id = %v, want b1", row["buyer_id"])
	}
}

func TestAPIHandlers_HandleHealth(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handlers.HandleHealth(w, req)

	data, ok := decodeSuccess(t, w).(map[string]any)
	if !ok {
		t.Fatal("expected health object in response")
	}
	if data["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", data["status"])
	}
}

func TestAPIHandlers_HandleStats(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	w := httptest.NewRecorder()

	handlers.HandleStats(w, req)

	data, ok := decodeSuccess(t, w).(map[string]any)
	if !ok {
		t.Fatal("expected stats object in response")
	}
	if count, ok := data["record_count"].(float64); !ok || count != 4 {
		t.Errorf("record_count = %v, want 4", data["record_count"])
	}
}
