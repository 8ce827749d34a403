package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"orderlens/internal/errors"
	"orderlens/internal/observability"
	"orderlens/internal/services"
)

// SnapshotCacheControl is the shared cache policy for everything derived from
// the immutable snapshot, the JSON views and the dashboard page alike.
const SnapshotCacheControl = "public, max-age=300"

// APIHandlers serves the precomputed views as JSON. Every view is a read of
// immutable snapshot results, so responses are cacheable.
type APIHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewAPIHandlers(analytics *services.Analytics, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

func (h *APIHandlers) writeView(w http.ResponseWriter, data any) {
	headers := map[string]string{
		"Cache-Control": SnapshotCacheControl,
	}
	errors.WriteSuccessWithHeaders(w, data, headers)
}

func (h *APIHandlers) HandleMonthlyPurchases(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, h.analytics.MonthlyPurchases())
}

func (h *APIHandlers) HandleActiveStores(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, h.analytics.ActiveStores())
}

func (h *APIHandlers) HandleRefundLatency(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, h.analytics.RefundLatencies())
}

func (h *APIHandlers) HandleFirstOrders(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, h.analytics.FirstOrders())
}

func (h *APIHandlers) HandleTopFirstItem(w http.ResponseWriter, r *http.Request) {
	top := h.analytics.TopFirstPurchaseItem()
	if top == nil {
		requestID := observability.GetRequestID(r.Context())
		errors.WriteError(w, h.logger, errors.NotFound("no first-purchase item in snapshot"), requestID)
		return
	}
	h.writeView(w, top)
}

func (h *APIHandlers) HandleRefundEligibility(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, h.analytics.RefundEligibility())
}

func (h *APIHandlers) HandleSecondPurchases(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, h.analytics.SecondPurchases())
}

func (h *APIHandlers) HandleSecondPurchaseTimes(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, h.analytics.SecondPurchaseTimes())
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.analytics.Stats()

	errors.WriteSuccess(w, stats)
}
