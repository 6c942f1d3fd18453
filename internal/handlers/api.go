package handlers

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"sales-dashboard/internal/dataset"
	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/export"
	"sales-dashboard/internal/filter"
	"sales-dashboard/internal/insights"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/services"
)

const maxUploadBytes = 64 << 20

type APIHandlers struct {
	dashboard *services.Dashboard
	logger    *slog.Logger
}

func NewAPIHandlers(dashboard *services.Dashboard, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		dashboard: dashboard,
		logger:    logger,
	}
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, h.logger, toAppError(err), observability.GetRequestID(r.Context()))
}

// toAppError maps service and domain failures onto the API envelope.
func toAppError(err error) error {
	var (
		appErr  *errors.AppError
		loadErr *dataset.LoadError
		fErr    *filter.FilterError
		aiErr   *insights.AiError
	)
	switch {
	case stderrors.As(err, &appErr):
		return appErr
	case stderrors.Is(err, services.ErrNoDataset):
		return errors.ServiceUnavailable("No dataset is loaded")
	case stderrors.Is(err, export.ErrNotConfigured):
		return errors.ServiceUnavailable("Export storage is not configured")
	case stderrors.As(err, &loadErr):
		return errors.FromLoad(err)
	case stderrors.As(err, &fErr):
		return errors.FromFilter(err)
	case stderrors.As(err, &aiErr):
		return errors.FromInsights(err)
	default:
		return errors.InternalWrap(err, "An unexpected error occurred")
	}
}

func (h *APIHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	f, err := h.dashboard.ParseFilter(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	snap, err := h.dashboard.Summary(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	headers := map[string]string{
		"Cache-Control": "private, max-age=60",
	}

	errors.WriteSuccessWithHeaders(w, snap, headers)
}

type ordersResponse struct {
	Term    string          `json:"term"`
	Count   int             `json:"count"`
	Records []models.Record `json:"records"`
}

func (h *APIHandlers) HandleOrders(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")

	records, err := h.dashboard.Search(term)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccess(w, ordersResponse{Term: term, Count: len(records), Records: records})
}

func (h *APIHandlers) HandleOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	records, err := h.dashboard.Order(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(records) == 0 {
		h.fail(w, r, errors.NotFound("Order "+strconv.Quote(id)+" not found"))
		return
	}

	errors.WriteSuccess(w, ordersResponse{Term: id, Count: len(records), Records: records})
}

func (h *APIHandlers) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	f, err := h.dashboard.ParseFilter(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	body, records, err := h.dashboard.ExportCSV(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(time.Now())+`"`)
	w.Header().Set("X-Record-Count", strconv.Itoa(records))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		observability.FromContext(r.Context(), h.logger).Warn("write export", "error", err)
	}
}

func (h *APIHandlers) HandlePublishExport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, errors.BadRequestWrap(err, "Invalid form"))
		return
	}
	f, err := h.dashboard.ParseFilter(r.Form)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	published, err := h.dashboard.PublishExport(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccess(w, published)
}

func (h *APIHandlers) HandleInsights(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, errors.BadRequestWrap(err, "Invalid form"))
		return
	}
	f, err := h.dashboard.ParseFilter(r.Form)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	insight, err := h.dashboard.Insights(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccess(w, insight)
}

func (h *APIHandlers) HandleDiagnostics(w http.ResponseWriter, r *http.Request) {
	diag, err := h.dashboard.Diagnostics()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccess(w, diag)
}

func (h *APIHandlers) HandleFilterOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.dashboard.FilterOptions()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	headers := map[string]string{
		"Cache-Control": "private, max-age=300",
	}

	errors.WriteSuccessWithHeaders(w, opts, headers)
}

// HandleUpload replaces the dataset with an uploaded CSV in the "file" form
// field. A rejected file leaves the current dataset untouched.
func (h *APIHandlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, errors.BadRequestWrap(err, "Expected a CSV file in the \"file\" field"))
		return
	}
	defer file.Close()

	diag, err := h.dashboard.LoadFromReader(r.Context(), header.Filename, file)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	observability.FromContext(r.Context(), h.logger).Info("dataset uploaded",
		"filename", header.Filename,
		"records", diag.Loaded,
		"dropped", diag.Dropped,
	)
	errors.WriteSuccess(w, diag)
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

	stats := h.dashboard.Stats()

	errors.WriteSuccess(w, stats)
}
