// Package templates renders the dashboard page shell. Everything data driven
// is patched in afterwards over the /sse endpoints.
package templates

import (
	"encoding/json"
	"fmt"

	"github.com/a-h/templ"
)

const defaultTitle = "Sales Performance Dashboard"

// DashboardData is what the page needs to draw its filter controls.
type DashboardData struct {
	Title       string
	Categories  []string
	Sizes       []string
	States      []string
	Cities      []string
	Fulfillment []string
	MinDate     string
	MaxDate     string
	DefaultTopN int
	AIEnabled   bool
	Loaded      bool
}

func (d DashboardData) pageTitle() string {
	if d.Title == "" {
		return defaultTitle
	}
	return d.Title
}

// initialSignals seeds the page's signal store. The keys match the JSON
// names the /sse handlers read back.
func initialSignals(data DashboardData) (string, error) {
	signals := map[string]any{
		"from":            data.MinDate,
		"to":              data.MaxDate,
		"categories":      []string{},
		"sizes":           []string{},
		"states":          []string{},
		"cities":          []string{},
		"fulfillment":     []string{},
		"b2b":             "",
		"topN":            data.DefaultTopN,
		"search":          "",
		"insightsLoading": false,
		"monthlyData":     []any{},
		"categoriesData":  []any{},
		"fulfillmentData": []any{},
		"segmentsData":    []any{},
	}
	raw, err := json.Marshal(signals)
	if err != nil {
		return "", fmt.Errorf("encode signals: %w", err)
	}
	return string(raw), nil
}

// exportHref is the datastar expression for the download link. It carries
// every filter signal, repeated keys included, so the file matches the view.
const exportHref = `'/api/export.csv?' + exportQuery({from: $from, to: $to, search: $search, b2b: $b2b, topN: $topN, categories: $categories, sizes: $sizes, states: $states, cities: $cities, fulfillment: $fulfillment})`

var chartIDs = []string{"monthly-chart", "categories-chart", "fulfillment-chart", "segments-chart"}

var tableIDs = []string{"categories-content", "states-content", "status-content"}

func inlineStyles() templ.Component {
	return templ.Raw("<style>" + styles + "</style>")
}

func inlineScript() templ.Component {
	return templ.Raw("<script>" + pageScript + "</script>")
}

const styles = `
body{font-family:system-ui,sans-serif;margin:0;background:#f5f6f8;color:#1f2933}
header{display:flex;justify-content:space-between;align-items:center;padding:1rem 2rem;background:#1f2933;color:#fff}
main{display:grid;grid-template-columns:260px 1fr;gap:1.5rem;padding:1.5rem 2rem}
.filters label{display:block;margin-bottom:.75rem;font-size:.9rem}
.filters select,.filters input{width:100%}
.kpi-grid{display:grid;grid-template-columns:repeat(5,1fr);gap:1rem}
.kpi-card{background:#fff;border-radius:8px;padding:1rem;box-shadow:0 1px 2px rgba(0,0,0,.08)}
.kpi-label{display:block;font-size:.8rem;color:#616e7c}
.charts,.tables{display:grid;grid-template-columns:repeat(2,1fr);gap:1rem;margin-top:1rem}
.chart{background:#fff;border-radius:8px;padding:1rem}
.modern-table{width:100%;border-collapse:collapse;background:#fff}
.modern-table th,.modern-table td{padding:.4rem .6rem;border-bottom:1px solid #e4e7eb;text-align:left}
.notice{padding:.75rem 1rem;border-radius:6px;margin:.5rem 0;display:flex;gap:1rem;align-items:center}
.notice-warn{background:#fff3c4}
.notice-error{background:#ffe3e3}
.notice-dismiss{margin-left:auto;border:none;background:none;font-size:1.2rem;cursor:pointer}
.insights-report{white-space:pre-wrap;background:#fff;border-radius:8px;padding:1rem;margin-top:1rem}
.button{color:#fff}
`

const pageScript = `
function exportQuery(s) {
  const params = new URLSearchParams();
  const single = {from: s.from, to: s.to, q: s.search, b2b: s.b2b, top_n: s.topN};
  for (const [key, value] of Object.entries(single)) {
    if (value !== "" && value !== null && value !== undefined) params.set(key, value);
  }
  const repeated = {category: s.categories, size: s.sizes, state: s.states, city: s.cities, fulfillment: s.fulfillment};
  for (const [key, values] of Object.entries(repeated)) {
    for (const value of values || []) params.append(key, value);
  }
  return params.toString();
}
const charts = {};
function draw(id, type, labels, values, label) {
  const el = document.getElementById(id);
  if (!el || typeof Chart === "undefined") return;
  if (charts[id]) charts[id].destroy();
  charts[id] = new Chart(el, {type, data: {labels, datasets: [{label, data: values}]}});
}
function renderCharts(monthly, categories, fulfillment, segments) {
  draw("monthly-chart", "line", monthly.map(p => p.year + "-" + String(p.month).padStart(2, "0")), monthly.map(p => Number(p.sum)), "Monthly sales");
  draw("categories-chart", "bar", categories.map(g => g.key || "(blank)"), categories.map(g => Number(g.sum)), "Top categories");
  draw("fulfillment-chart", "pie", fulfillment.map(g => g.key || "(blank)"), fulfillment.map(g => g.count), "Fulfillment");
  draw("segments-chart", "doughnut", segments.map(g => g.key), segments.map(g => Number(g.sum)), "B2B vs B2C");
}
`
