// Package prompt serializes a summary snapshot into the text sent to the
// insights model. Output is a pure function of its inputs.
package prompt

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"sales-dashboard/internal/models"
)

const (
	DefaultMaxChars = 4000
	MinMaxChars     = 512

	// maxListedValues bounds how many selected values of one filter set are
	// spelled out before the rest is summarized as a count.
	maxListedValues = 5
)

const instructions = `Act as a Senior Business Strategist. Analyze the filtered sales data below and write a concise business insight report with 3 key findings and 3 actionable recommendations.
Focus on inventory strategy (categories), fulfillment logistics, regional performance and sales trends within this segment.`

// Builder renders prompts under a character budget.
type Builder struct {
	maxChars int
}

// NewBuilder clamps maxChars to at least MinMaxChars.
func NewBuilder(maxChars int) *Builder {
	return &Builder{maxChars: max(maxChars, MinMaxChars)}
}

// MaxChars is the effective budget.
func (b *Builder) MaxChars() int { return b.maxChars }

// Build renders snap and f with the default budget.
func Build(snap models.SummarySnapshot, f models.FilterState) string {
	return NewBuilder(DefaultMaxChars).Build(snap, f)
}

type section struct {
	title string
	rows  []string
	// kept is how many leading rows survive truncation.
	kept int
	// dropped marks the whole section as removed.
	dropped bool
}

func (s *section) render(b *strings.Builder) {
	if s.dropped {
		return
	}
	b.WriteString("[")
	b.WriteString(s.title)
	b.WriteString("]\n")
	for _, row := range s.rows[:s.kept] {
		b.WriteString(row)
		b.WriteString("\n")
	}
	if omitted := len(s.rows) - s.kept; omitted > 0 {
		fmt.Fprintf(b, "... (%d more rows omitted)\n", omitted)
	}
}

// Build renders the prompt. When it exceeds the budget, rows are removed
// from the end of the lowest-priority section first (fulfillment, then
// categories, then monthly trend); a section left without rows is removed
// along with its header. The instructions, filters, KPIs and the END marker
// are always present, so the output is well formed even when it cannot be
// brought under budget.
func (b *Builder) Build(snap models.SummarySnapshot, f models.FilterState) string {
	fixed := []*section{
		newSection("FILTERS", filterRows(f)),
		newSection("KPIS", kpiRows(snap.KPIs)),
	}
	// Ordered from highest to lowest priority.
	trimmable := []*section{
		newSection("MONTHLY_TREND (month: total_sales, records)", monthlyRows(snap.MonthlyTrend)),
		newSection(fmt.Sprintf("TOP_%d_CATEGORIES (category: total_sales, records)", snap.TopN), groupRows(snap.TopCategories)),
		newSection("FULFILLMENT (method: records, total_sales)", fulfillmentRows(snap.Fulfillment)),
	}
	for _, s := range trimmable {
		if len(s.rows) == 0 {
			s.dropped = true
		}
	}

	out := render(fixed, trimmable)
	for utf8.RuneCountInString(out) > b.maxChars {
		s := lowestLive(trimmable)
		if s == nil {
			break
		}
		if s.kept > 0 {
			s.kept--
		}
		if s.kept == 0 {
			s.dropped = true
		}
		out = render(fixed, trimmable)
	}
	return out
}

func newSection(title string, rows []string) *section {
	return &section{title: title, rows: rows, kept: len(rows)}
}

func lowestLive(sections []*section) *section {
	for i := len(sections) - 1; i >= 0; i-- {
		if !sections[i].dropped {
			return sections[i]
		}
	}
	return nil
}

func render(fixed, trimmable []*section) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n")
	for _, s := range fixed {
		s.render(&b)
	}
	for _, s := range trimmable {
		s.render(&b)
	}
	b.WriteString("[END]\n")
	return b.String()
}

func filterRows(f models.FilterState) []string {
	f = f.Normalize()
	b2b := "any"
	if f.B2B != nil {
		b2b = strconv.FormatBool(*f.B2B)
	}
	search := "none"
	if f.SearchTerm != "" {
		search = strconv.Quote(f.SearchTerm)
	}
	return []string{
		"date_range: " + day(f.DateFrom.IsZero(), f.DateFrom.Format("2006-01-02")) + " .. " + day(f.DateTo.IsZero(), f.DateTo.Format("2006-01-02")),
		"categories: " + listSet(f.Categories),
		"sizes: " + listSet(f.Sizes),
		"states: " + listSet(f.States),
		"cities: " + listSet(f.Cities),
		"fulfillment: " + listSet(f.FulfillmentMethods),
		"b2b: " + b2b,
		"order_id_search: " + search,
	}
}

func day(open bool, formatted string) string {
	if open {
		return "*"
	}
	return formatted
}

func listSet(values []string) string {
	if len(values) == 0 {
		return "all"
	}
	shown := make([]string, 0, min(len(values), maxListedValues))
	for _, v := range values[:min(len(values), maxListedValues)] {
		shown = append(shown, oneLine(v))
	}
	if len(values) <= maxListedValues {
		return strings.Join(shown, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(shown, ", "), len(values)-maxListedValues)
}

func kpiRows(k models.KPIs) []string {
	return []string{
		"total_sales: " + k.TotalSales.StringFixed(2),
		"total_orders: " + strconv.Itoa(k.TotalOrders),
		"avg_order_value: " + k.AvgOrderValue.StringFixed(2),
		"total_quantity: " + strconv.Itoa(k.TotalQuantity),
		"records: " + strconv.Itoa(k.Records),
	}
}

func monthlyRows(points []models.MonthlyPoint) []string {
	rows := make([]string, len(points))
	for i, p := range points {
		rows[i] = fmt.Sprintf("%s: %s, %d", p.Label(), p.Sum.StringFixed(2), p.Count)
	}
	return rows
}

func groupRows(groups []models.GroupSummary) []string {
	rows := make([]string, len(groups))
	for i, g := range groups {
		rows[i] = fmt.Sprintf("%s: %s, %d", label(g.Key), g.Sum.StringFixed(2), g.Count)
	}
	return rows
}

func fulfillmentRows(groups []models.GroupSummary) []string {
	rows := make([]string, len(groups))
	for i, g := range groups {
		rows[i] = fmt.Sprintf("%s: %d, %s", label(g.Key), g.Count, g.Sum.StringFixed(2))
	}
	return rows
}

func label(key string) string {
	if key == "" {
		return "(blank)"
	}
	return oneLine(key)
}

// oneLine keeps a data value on its own row. Values holding control
// characters, or that would start a line with a section bracket, are quoted.
func oneLine(v string) string {
	if strings.HasPrefix(v, "[") || strings.ContainsFunc(v, unicode.IsControl) {
		return strconv.Quote(v)
	}
	return v
}
