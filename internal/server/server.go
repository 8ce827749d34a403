package server

import (
	"log/slog"
	"net/http"

	"orderlens/internal/handlers"
	"orderlens/internal/services"
)

type Server struct {
	analytics   *services.Analytics
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

func NewServer(analytics *services.Analytics, logger *slog.Logger, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		analytics:   analytics,
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(analytics, logger),
		sseHandlers: handlers.NewSSEHandlers(analytics, logger),
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Dashboard routes
	s.mux.HandleFunc("GET /", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)

	// REST API endpoints, one per derived view
	s.mux.HandleFunc("GET /api/monthly-purchases", s.apiHandlers.HandleMonthlyPurchases)
	s.mux.HandleFunc("GET /api/active-stores", s.apiHandlers.HandleActiveStores)
	s.mux.HandleFunc("GET /api/refund-latency", s.apiHandlers.HandleRefundLatency)
	s.mux.HandleFunc("GET /api/first-orders", s.apiHandlers.HandleFirstOrders)
	s.mux.HandleFunc("GET /api/top-first-item", s.apiHandlers.HandleTopFirstItem)
	s.mux.HandleFunc("GET /api/refund-eligibility", s.apiHandlers.HandleRefundEligibility)
	s.mux.HandleFunc("GET /api/second-purchases", s.apiHandlers.HandleSecondPurchases)
	s.mux.HandleFunc("GET /api/second-purchase-times", s.apiHandlers.HandleSecondPurchaseTimes)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/monthly-purchases", s.sseHandlers.HandleMonthlyPurchases)
	s.mux.HandleFunc("GET /sse/refund-latency", s.sseHandlers.HandleRefundLatency)
	s.mux.HandleFunc("GET /sse/first-orders", s.sseHandlers.HandleFirstOrders)
	s.mux.HandleFunc("GET /sse/refresh-all", s.sseHandlers.HandleRefreshAll)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
