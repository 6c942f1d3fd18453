package server

import (
	"log/slog"
	"net/http"

	"sales-dashboard/internal/handlers"
	"sales-dashboard/internal/services"
)

type Server struct {
	dashboard   *services.Dashboard
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

func NewServer(dashboard *services.Dashboard, logger *slog.Logger, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		dashboard:   dashboard,
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(dashboard, logger),
		sseHandlers: handlers.NewSSEHandlers(dashboard, logger),
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Dashboard routes
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)

	// REST API endpoints
	s.mux.HandleFunc("GET /api/summary", s.apiHandlers.HandleSummary)
	s.mux.HandleFunc("GET /api/options", s.apiHandlers.HandleFilterOptions)
	s.mux.HandleFunc("GET /api/orders", s.apiHandlers.HandleOrders)
	s.mux.HandleFunc("GET /api/orders/{id}", s.apiHandlers.HandleOrder)
	s.mux.HandleFunc("GET /api/export.csv", s.apiHandlers.HandleExportCSV)
	s.mux.HandleFunc("POST /api/export", s.apiHandlers.HandlePublishExport)
	s.mux.HandleFunc("POST /api/insights", s.apiHandlers.HandleInsights)
	s.mux.HandleFunc("GET /api/diagnostics", s.apiHandlers.HandleDiagnostics)
	s.mux.HandleFunc("POST /api/dataset", s.apiHandlers.HandleUpload)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/summary", s.sseHandlers.HandleSummary)
	s.mux.HandleFunc("GET /sse/insights", s.sseHandlers.HandleInsights)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
