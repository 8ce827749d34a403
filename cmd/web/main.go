package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"orderlens/internal/config"
	"orderlens/internal/handlers"
	"orderlens/internal/middleware"
	"orderlens/internal/observability"
	"orderlens/internal/server"
	"orderlens/internal/services"
	"orderlens/internal/snapshot"
	"orderlens/internal/ui/templates"
)

const (
	renderTimeout       = 10 * time.Second
	snapshotLoadTimeout = 30 * time.Second
)

func handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()

	w.Header().Set("Cache-Control", handlers.SnapshotCacheControl)
	if err := templates.Dashboard().Render(ctx, w); err != nil {
		http.Error(w, "render error", http.StatusInternalServerError)
	}
}

// snapshotSource picks the configured source; a sqlite file wins over the
// CSV pair.
func snapshotSource(cfg config.SnapshotConfig) snapshot.Source {
	if cfg.SQLiteFile != "" {
		return snapshot.SQLiteSource{Path: cfg.SQLiteFile}
	}
	return snapshot.CSVSource{
		TransactionsPath: cfg.TransactionsCSV,
		ItemsPath:        cfg.ItemsCSV,
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"config", cfg,
	)

	analytics := services.NewAnalytics(services.Params{
		TargetMonth:  cfg.Analytics.TargetMonth,
		MinOrders:    cfg.Analytics.MinOrders,
		RefundWindow: cfg.Analytics.RefundWindow,
	})

	ctx, cancel := context.WithTimeout(context.Background(), snapshotLoadTimeout)
	defer cancel()

	start := time.Now()
	if err := analytics.Load(ctx, snapshotSource(cfg.Snapshot)); err != nil {
		logger.Error("failed to load snapshot", "error", err)
		os.Exit(1)
	}
	logger.Info("snapshot loaded", "duration", time.Since(start))

	templateHandlers := &server.TemplateHandlers{
		Dashboard: handleDashboard,
	}

	srv := server.NewServer(analytics, logger, templateHandlers)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)

	handler := middlewareChain(srv)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		logger.Info("shutting down analytics service")
		return nil
	})

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
