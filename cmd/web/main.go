package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/export"
	"sales-dashboard/internal/insights"
	"sales-dashboard/internal/middleware"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/server"
	"sales-dashboard/internal/services"
	"sales-dashboard/internal/ui/templates"
)

const (
	renderTimeout  = 10 * time.Second
	csvLoadTimeout = 30 * time.Second
	cacheMaxAge    = "private, max-age=60"
)

// dashboardPage renders the page shell with the filter options of the
// currently loaded dataset.
func dashboardPage(dash *services.Dashboard, aiEnabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		data := templates.DashboardData{
			DefaultTopN: dash.DefaultTopN(),
			AIEnabled:   aiEnabled,
		}
		if opts, err := dash.FilterOptions(); err == nil {
			data.Loaded = true
			data.Categories = opts.Categories
			data.Sizes = opts.Sizes
			data.States = opts.States
			data.Cities = opts.Cities
			data.Fulfillment = opts.Fulfillment
			data.MinDate = opts.MinDate.Format("2006-01-02")
			data.MaxDate = opts.MaxDate.Format("2006-01-02")
		}

		w.Header().Set("Cache-Control", cacheMaxAge)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := templates.Dashboard(data).Render(ctx, w); err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

func newGenerator(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (insights.Generator, error) {
	if !cfg.Enabled() {
		logger.Warn("no Gemini API key configured, insights disabled")
		return insights.Disabled{}, nil
	}

	gen, err := insights.NewGeminiGenerator(ctx, cfg.APIKeys, cfg.Model, logger)
	if err != nil {
		return nil, err
	}
	return insights.NewClient(gen, insights.Config{
		Timeout:   cfg.Timeout,
		RPS:       cfg.RPS,
		Burst:     cfg.Burst,
		CacheSize: cfg.CacheSize,
	}, logger)
}

func newPublisher(cfg config.ExportConfig, logger *slog.Logger) (export.Publisher, error) {
	if !cfg.Enabled() {
		logger.Info("export storage not configured, object exports disabled")
		return nil, nil
	}
	return export.NewS3Store(export.S3Config{
		Endpoint:  cfg.Endpoint,
		Region:    cfg.Region,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		UseSSL:    cfg.UseSSL,
		URLExpiry: cfg.URLExpiry,
	})
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
		"csv_file", cfg.Database.CSVFile,
		"ai_enabled", cfg.AI.Enabled(),
		"ai_model", cfg.AI.Model,
		"export_enabled", cfg.Export.Enabled(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), csvLoadTimeout)
	defer cancel()

	generator, err := newGenerator(ctx, cfg.AI, logger)
	if err != nil {
		logger.Error("failed to initialize insights", "error", err)
		os.Exit(1)
	}

	publisher, err := newPublisher(cfg.Export, logger)
	if err != nil {
		logger.Error("failed to initialize export storage", "error", err)
		os.Exit(1)
	}

	dashboard, err := services.NewDashboard(services.Options{
		DefaultTopN:       cfg.Dashboard.DefaultTopN,
		SnapshotCacheSize: cfg.Dashboard.SnapshotCacheSize,
		MaxPromptChars:    cfg.AI.MaxPromptChars,
		CacheDir:          cfg.Database.CacheDir,
		Insights:          generator,
		Publisher:         publisher,
	}, logger)
	if err != nil {
		logger.Error("failed to create dashboard", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	if err := dashboard.LoadFromCSV(ctx, cfg.Database.CSVFile); err != nil {
		// The server still starts so a corrected file can be uploaded.
		logger.Error("failed to load CSV data", "error", err)
	} else {
		logger.Info("CSV data loaded successfully", "duration", time.Since(start))
	}

	templateHandlers := &server.TemplateHandlers{
		Dashboard: dashboardPage(dashboard, cfg.AI.Enabled()),
	}

	srv := server.NewServer(dashboard, logger, templateHandlers)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
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
		WriteTimeout: max(cfg.Server.WriteTimeout, cfg.AI.Timeout+5*time.Second),
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook("dashboard", func(ctx context.Context) error {
		logger.Info("shutting down dashboard service", "stats", dashboard.Stats())
		return nil
	})

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
