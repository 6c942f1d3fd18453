package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type KPIs struct {
	TotalSales    decimal.Decimal `json:"total_sales"`
	TotalOrders   int             `json:"total_orders"`
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`
	TotalQuantity int             `json:"total_quantity"`
	Records       int             `json:"records"`
}

// Leaders holds the most frequent value per dimension by record count.
type Leaders struct {
	Category    string `json:"category"`
	Size        string `json:"size"`
	State       string `json:"state"`
	City        string `json:"city"`
	Fulfillment string `json:"fulfillment"`
}

type GroupSummary struct {
	Key   string          `json:"key"`
	Count int             `json:"count"`
	Sum   decimal.Decimal `json:"sum"`
	Mean  decimal.Decimal `json:"mean"`
}

type MonthlyPoint struct {
	Year  int             `json:"year"`
	Month time.Month      `json:"month"`
	Count int             `json:"count"`
	Sum   decimal.Decimal `json:"sum"`
}

// Label renders the point as YYYY-MM.
func (p MonthlyPoint) Label() string {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

type FulfillmentStatus struct {
	Fulfillment string          `json:"fulfillment"`
	Status      string          `json:"status"`
	Count       int             `json:"count"`
	Sum         decimal.Decimal `json:"sum"`
}

// SummarySnapshot is the aggregate output for one FilteredView.
type SummarySnapshot struct {
	KPIs              KPIs                `json:"kpis"`
	Leaders           Leaders             `json:"leaders"`
	MonthlyTrend      []MonthlyPoint      `json:"monthly_trend"`
	TopN              int                 `json:"top_n"`
	TopCategories     []GroupSummary      `json:"top_categories"`
	TopSizes          []GroupSummary      `json:"top_sizes"`
	TopStates         []GroupSummary      `json:"top_states"`
	TopCities         []GroupSummary      `json:"top_cities"`
	Fulfillment       []GroupSummary      `json:"fulfillment"`
	Status            []GroupSummary      `json:"status"`
	FulfillmentStatus []FulfillmentStatus `json:"fulfillment_status"`
	Segments          []GroupSummary      `json:"segments"`
}
