// Package aggregate computes KPIs and grouped summaries over a filtered view.
//
// All grouping is exact and case-sensitive on the raw string value. Top-N
// lists are sorted by summed amount descending, ties broken by ascending key,
// and truncated; the truncated remainder is dropped rather than merged into
// an "other" bucket.
package aggregate

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sales-dashboard/internal/models"
)

const (
	SegmentB2B = "B2B"
	SegmentB2C = "B2C"

	meanPlaces = 2
)

type accumulator struct {
	count int
	sum   decimal.Decimal
}

func (a *accumulator) add(amount decimal.Decimal) {
	a.count++
	a.sum = a.sum.Add(amount)
}

type groups map[string]*accumulator

func (g groups) add(key string, amount decimal.Decimal) {
	acc, ok := g[key]
	if !ok {
		acc = &accumulator{}
		g[key] = acc
	}
	acc.add(amount)
}

type monthKey struct {
	year  int
	month time.Month
}

func (m monthKey) before(o monthKey) bool {
	return m.year < o.year || (m.year == o.year && m.month < o.month)
}

func (m monthKey) next() monthKey {
	if m.month == time.December {
		return monthKey{year: m.year + 1, month: time.January}
	}
	return monthKey{year: m.year, month: m.month + 1}
}

type pairKey struct {
	fulfillment string
	status      string
}

// Summarize computes a fresh snapshot. It never fails: an empty view yields
// zero KPIs and empty tables. topN values below 1 fall back to
// models.DefaultTopN.
func Summarize(view models.FilteredView, topN int) models.SummarySnapshot {
	if topN < 1 {
		topN = models.DefaultTopN
	}

	var (
		totalSales decimal.Decimal
		totalQty   int
		orders     = make(map[string]struct{})
		monthly    = make(map[monthKey]*accumulator)
		category   = make(groups)
		size       = make(groups)
		state      = make(groups)
		city       = make(groups)
		fulfill    = make(groups)
		status     = make(groups)
		segments   = make(groups)
		pairs      = make(map[pairKey]*accumulator)
		first      monthKey
		last       monthKey
	)

	for i := 0; i < view.Len(); i++ {
		rec := view.At(i)

		totalSales = totalSales.Add(rec.Amount)
		totalQty += rec.Quantity
		orders[rec.OrderID] = struct{}{}

		mk := monthKey{year: rec.OrderDate.Year(), month: rec.OrderDate.Month()}
		if i == 0 || mk.before(first) {
			first = mk
		}
		if i == 0 || last.before(mk) {
			last = mk
		}
		acc, ok := monthly[mk]
		if !ok {
			acc = &accumulator{}
			monthly[mk] = acc
		}
		acc.add(rec.Amount)

		category.add(rec.Category, rec.Amount)
		size.add(rec.Size, rec.Amount)
		state.add(rec.State, rec.Amount)
		city.add(rec.City, rec.Amount)
		fulfill.add(rec.FulfillmentMethod, rec.Amount)
		status.add(rec.OrderStatus, rec.Amount)
		if rec.IsB2B {
			segments.add(SegmentB2B, rec.Amount)
		} else {
			segments.add(SegmentB2C, rec.Amount)
		}

		pk := pairKey{fulfillment: rec.FulfillmentMethod, status: rec.OrderStatus}
		pacc, ok := pairs[pk]
		if !ok {
			pacc = &accumulator{}
			pairs[pk] = pacc
		}
		pacc.add(rec.Amount)
	}

	snap := models.SummarySnapshot{
		KPIs: models.KPIs{
			TotalSales:    totalSales,
			TotalOrders:   len(orders),
			AvgOrderValue: decimal.Zero,
			TotalQuantity: totalQty,
			Records:       view.Len(),
		},
		Leaders: models.Leaders{
			Category:    leader(category),
			Size:        leader(size),
			State:       leader(state),
			City:        leader(city),
			Fulfillment: leader(fulfill),
		},
		MonthlyTrend:      monthlyTrend(monthly, first, last, view.Len() > 0),
		TopN:              topN,
		TopCategories:     topGroups(category, topN),
		TopSizes:          topGroups(size, topN),
		TopStates:         topGroups(state, topN),
		TopCities:         topGroups(city, topN),
		Fulfillment:       breakdown(fulfill),
		Status:            breakdown(status),
		FulfillmentStatus: crossTab(pairs),
		Segments:          breakdown(segments),
	}
	if len(orders) > 0 {
		snap.KPIs.AvgOrderValue = totalSales.Div(decimal.NewFromInt(int64(len(orders)))).Round(meanPlaces)
	}
	return snap
}

// monthlyTrend lists every month from first to last inclusive, with zero
// entries for months that had no records.
func monthlyTrend(monthly map[monthKey]*accumulator, first, last monthKey, nonEmpty bool) []models.MonthlyPoint {
	out := make([]models.MonthlyPoint, 0, len(monthly))
	if !nonEmpty {
		return out
	}
	for mk := first; !last.before(mk); mk = mk.next() {
		point := models.MonthlyPoint{Year: mk.year, Month: mk.month, Sum: decimal.Zero}
		if acc, ok := monthly[mk]; ok {
			point.Count = acc.count
			point.Sum = acc.sum
		}
		out = append(out, point)
	}
	return out
}

func summaries(g groups) []models.GroupSummary {
	out := make([]models.GroupSummary, 0, len(g))
	for key, acc := range g {
		out = append(out, models.GroupSummary{
			Key:   key,
			Count: acc.count,
			Sum:   acc.sum,
			Mean:  acc.sum.Div(decimal.NewFromInt(int64(acc.count))).Round(meanPlaces),
		})
	}
	return out
}

// topGroups returns the n groups with the largest summed amount.
func topGroups(g groups, n int) []models.GroupSummary {
	out := summaries(g)
	slices.SortFunc(out, compareBySumDesc)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func compareBySumDesc(a, b models.GroupSummary) int {
	if c := b.Sum.Cmp(a.Sum); c != 0 {
		return c
	}
	return strings.Compare(a.Key, b.Key)
}

// breakdown returns every observed group ordered by key.
func breakdown(g groups) []models.GroupSummary {
	out := summaries(g)
	slices.SortFunc(out, func(a, b models.GroupSummary) int {
		return strings.Compare(a.Key, b.Key)
	})
	return out
}

func crossTab(pairs map[pairKey]*accumulator) []models.FulfillmentStatus {
	out := make([]models.FulfillmentStatus, 0, len(pairs))
	for pk, acc := range pairs {
		out = append(out, models.FulfillmentStatus{
			Fulfillment: pk.fulfillment,
			Status:      pk.status,
			Count:       acc.count,
			Sum:         acc.sum,
		})
	}
	slices.SortFunc(out, func(a, b models.FulfillmentStatus) int {
		if c := strings.Compare(a.Fulfillment, b.Fulfillment); c != 0 {
			return c
		}
		return strings.Compare(a.Status, b.Status)
	})
	return out
}

// leader returns the most frequent key by record count.
func leader(g groups) string {
	best, bestCount := "", 0
	for key, acc := range g {
		if acc.count > bestCount || (acc.count == bestCount && key < best) {
			best, bestCount = key, acc.count
		}
	}
	return best
}
