package handlers

import (
	"encoding/json"
	stderrors "errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/insights"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/services"
)

var kpiTemplate = template.Must(template.New("kpis").Parse(`
<div id="kpi-content" class="kpi-grid">
<div class="kpi-card"><span class="kpi-label">Total Sales</span><strong>{{.TotalSales.StringFixed 2}}</strong></div>
<div class="kpi-card"><span class="kpi-label">Orders</span><strong>{{.TotalOrders}}</strong></div>
<div class="kpi-card"><span class="kpi-label">Avg Order Value</span><strong>{{.AvgOrderValue.StringFixed 2}}</strong></div>
<div class="kpi-card"><span class="kpi-label">Units</span><strong>{{.TotalQuantity}}</strong></div>
<div class="kpi-card"><span class="kpi-label">Records</span><strong>{{.Records}}</strong></div>
</div>`))

var groupTableTemplate = template.Must(template.New("groupTable").Parse(`
<div id="{{.ID}}">
<table class="modern-table">
<thead><tr><th>{{.Label}}</th><th>Sales</th><th>Records</th><th>Mean</th></tr></thead>
<tbody>
{{range .Rows}}<tr>
<td>{{if .Key}}{{.Key}}{{else}}<em>(blank)</em>{{end}}</td>
<td><strong>{{.Sum.StringFixed 2}}</strong></td>
<td>{{.Count}}</td>
<td>{{.Mean.StringFixed 2}}</td>
</tr>{{else}}<tr><td colspan="4">No matching records</td></tr>{{end}}
</tbody>
</table>
</div>`))

var insightsTemplate = template.Must(template.New("insights").Parse(`
<div id="insights-content" class="insights-report">{{.}}</div>`))

var noticeTemplate = template.Must(template.New("notice").Parse(`
<div id="{{.ID}}" class="notice notice-{{.Level}}" role="alert">
<span>{{.Message}}</span>
{{if .Retry}}<button data-on:click="@get('{{.Retry}}')">Retry</button>{{end}}
<button class="notice-dismiss" data-on:click="el.parentElement.remove()" aria-label="Dismiss">&times;</button>
</div>`))

type notice struct {
	ID      string
	Level   string
	Message string
	Retry   string
}

type groupTable struct {
	ID    string
	Label string
	Rows  []models.GroupSummary
}

type SSEHandlers struct {
	dashboard *services.Dashboard
	logger    *slog.Logger
}

func NewSSEHandlers(dashboard *services.Dashboard, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		dashboard: dashboard,
		logger:    logger,
	}
}

// filterSignals mirrors the filter controls bound on the dashboard page.
type filterSignals struct {
	From        string   `json:"from"`
	To          string   `json:"to"`
	Categories  []string `json:"categories"`
	Sizes       []string `json:"sizes"`
	States      []string `json:"states"`
	Cities      []string `json:"cities"`
	Fulfillment []string `json:"fulfillment"`
	B2B         string   `json:"b2b"`
	TopN        int      `json:"topN"`
	Search      string   `json:"search"`
}

func (s filterSignals) values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("from", s.From)
	set("to", s.To)
	set("b2b", s.B2B)
	set("q", s.Search)
	if s.TopN > 0 {
		v.Set("top_n", strconv.Itoa(s.TopN))
	}
	v["category"] = s.Categories
	v["size"] = s.Sizes
	v["state"] = s.States
	v["city"] = s.Cities
	v["fulfillment"] = s.Fulfillment
	return v
}

func (h *SSEHandlers) readFilter(r *http.Request) (models.FilterState, error) {
	var signals filterSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		return models.FilterState{}, errors.BadRequestWrap(err, "Invalid signals")
	}
	return h.dashboard.ParseFilter(signals.values())
}

func render(t *template.Template, data any) (string, error) {
	var buf strings.Builder
	err := t.Execute(&buf, data)
	return buf.String(), err
}

func (h *SSEHandlers) patchNotice(sse *datastar.ServerSentEventGenerator, n notice) {
	html, err := render(noticeTemplate, n)
	if err != nil {
		h.logger.Error("render notice", "error", err)
		return
	}
	sse.PatchElements(html)
}

// HandleSummary recomputes the snapshot for the filter in the request
// signals, patches the KPI cards and tables and pushes chart series as
// signals.
func (h *SSEHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	f, err := h.readFilter(r)
	sse := datastar.NewSSE(w, r)
	if err != nil {
		h.patchNotice(sse, notice{ID: "summary-notice", Level: "warn", Message: userMessage(err)})
		return
	}

	snap, err := h.dashboard.Summary(r.Context(), f)
	if err != nil {
		observability.FromContext(r.Context(), h.logger).Error("compute summary", "error", err)
		h.patchNotice(sse, notice{ID: "summary-notice", Level: "error", Message: userMessage(err)})
		return
	}

	html, err := render(kpiTemplate, snap.KPIs)
	if err != nil {
		h.logger.Error("render kpis", "error", err)
		return
	}
	sse.PatchElements(html)

	for _, table := range []groupTable{
		{ID: "categories-content", Label: "Category", Rows: snap.TopCategories},
		{ID: "states-content", Label: "State", Rows: snap.TopStates},
		{ID: "status-content", Label: "Status", Rows: snap.Status},
	} {
		html, err := render(groupTableTemplate, table)
		if err != nil {
			h.logger.Error("render table", "table", table.ID, "error", err)
			return
		}
		sse.PatchElements(html)
	}

	sse.PatchElements(`<div id="summary-notice"></div>`)

	signals, err := json.Marshal(map[string]any{
		"monthlyData":     snap.MonthlyTrend,
		"categoriesData":  snap.TopCategories,
		"sizesData":       snap.TopSizes,
		"citiesData":      snap.TopCities,
		"fulfillmentData": snap.Fulfillment,
		"segmentsData":    snap.Segments,
		"leaders":         snap.Leaders,
	})
	if err != nil {
		h.logger.Error("marshal summary signals", "error", err)
		return
	}
	sse.PatchSignals(signals)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// HandleInsights generates the insight report for the current filter. A
// failure leaves the rest of the page alone and shows a dismissible notice
// with a retry button.
func (h *SSEHandlers) HandleInsights(w http.ResponseWriter, r *http.Request) {
	f, err := h.readFilter(r)
	sse := datastar.NewSSE(w, r)
	if err != nil {
		h.patchNotice(sse, notice{ID: "insights-notice", Level: "warn", Message: userMessage(err)})
		return
	}

	sse.PatchSignals([]byte(`{"insightsLoading": true}`))

	insight, err := h.dashboard.Insights(r.Context(), f)
	if err != nil {
		observability.FromContext(r.Context(), h.logger).Warn("insights unavailable", "error", err, "kind", insights.KindOf(err).String())
		h.patchNotice(sse, notice{
			ID:      "insights-notice",
			Level:   "warn",
			Message: userMessage(err),
			Retry:   "/sse/insights",
		})
		sse.PatchSignals([]byte(`{"insightsLoading": false}`))
		return
	}

	html, err := render(insightsTemplate, insight.Text)
	if err != nil {
		h.logger.Error("render insights", "error", err)
		return
	}
	sse.PatchElements(html)
	sse.PatchElements(`<div id="insights-notice"></div>`)
	sse.PatchSignals([]byte(`{"insightsLoading": false}`))

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// userMessage is the text shown in notices. Internal failures never leak
// their cause.
func userMessage(err error) string {
	var appErr *errors.AppError
	if stderrors.As(toAppError(err), &appErr) {
		if appErr.Details != "" && appErr.StatusCode < http.StatusInternalServerError {
			return appErr.Message + ": " + appErr.Details
		}
		return appErr.Message
	}
	return "Something went wrong"
}
