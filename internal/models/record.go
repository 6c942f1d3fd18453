package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one normalized sales transaction.
type Record struct {
	OrderID           string          `json:"order_id"`
	OrderDate         time.Time       `json:"order_date"`
	Category          string          `json:"category"`
	Size              string          `json:"size"`
	Quantity          int             `json:"quantity"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	FulfillmentMethod string          `json:"fulfillment_method"`
	OrderStatus       string          `json:"order_status"`
	IsB2B             bool            `json:"is_b2b"`
	State             string          `json:"state"`
	City              string          `json:"city"`
	// Extra holds unmapped columns by Column.ExtraKey.
	Extra map[string]string `json:"extra,omitempty"`
}

// Field identifies the typed Record attribute a source column was mapped to.
type Field int

const (
	FieldExtra Field = iota
	FieldOrderID
	FieldOrderDate
	FieldCategory
	FieldSize
	FieldQuantity
	FieldAmount
	FieldCurrency
	FieldFulfillment
	FieldStatus
	FieldB2B
	FieldState
	FieldCity
)

var fieldNames = map[Field]string{
	FieldExtra:       "extra",
	FieldOrderID:     "order_id",
	FieldOrderDate:   "order_date",
	FieldCategory:    "category",
	FieldSize:        "size",
	FieldQuantity:    "quantity",
	FieldAmount:      "amount",
	FieldCurrency:    "currency",
	FieldFulfillment: "fulfillment_method",
	FieldStatus:      "order_status",
	FieldB2B:         "is_b2b",
	FieldState:       "state",
	FieldCity:        "city",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "unknown"
}

// Column is one source column in its original position.
type Column struct {
	Name  string `json:"name"`
	Field Field  `json:"field"`
	// Key disambiguates unmapped columns that share a header name.
	Key string `json:"key,omitempty"`
}

// ExtraKey is the Record.Extra key holding this column's value.
func (c Column) ExtraKey() string {
	if c.Key != "" {
		return c.Key
	}
	return c.Name
}

// Schema is the column layout fixed at load time.
type Schema struct {
	Columns []Column `json:"columns"`
}

// Headers returns the original header names in source order.
func (s Schema) Headers() []string {
	headers := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		headers[i] = c.Name
	}
	return headers
}

// Has reports whether some column maps to f.
func (s Schema) Has(f Field) bool {
	return slices.ContainsFunc(s.Columns, func(c Column) bool { return c.Field == f })
}

// Dataset is an ordered, read-only sequence of Records sharing one Schema.
// It is never mutated after construction; filtering produces views.
type Dataset struct {
	schema  Schema
	records []Record
}

// NewDataset takes ownership of records.
func NewDataset(schema Schema, records []Record) *Dataset {
	return &Dataset{schema: schema, records: records}
}

func (d *Dataset) Schema() Schema {
	return Schema{Columns: slices.Clone(d.schema.Columns)}
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// At returns the record at index i in load order.
func (d *Dataset) At(i int) Record {
	return d.records[i]
}

// Records returns a copy of the records in load order.
func (d *Dataset) Records() []Record {
	if d == nil {
		return nil
	}
	return slices.Clone(d.records)
}

// All returns a view over every record.
func (d *Dataset) All() FilteredView {
	indices := make([]int, d.Len())
	for i := range indices {
		indices[i] = i
	}
	return NewFilteredView(d, indices)
}

// FilteredView is an ordered subsequence of a Dataset, held as indices into it.
type FilteredView struct {
	dataset *Dataset
	indices []int
}

// NewFilteredView expects indices to be ascending.
func NewFilteredView(d *Dataset, indices []int) FilteredView {
	return FilteredView{dataset: d, indices: indices}
}

func (v FilteredView) Len() int { return len(v.indices) }

func (v FilteredView) At(i int) Record { return v.dataset.records[v.indices[i]] }

// Schema returns the schema of the underlying dataset.
func (v FilteredView) Schema() Schema {
	if v.dataset == nil {
		return Schema{}
	}
	return v.dataset.Schema()
}

// Records materializes the view in dataset order.
func (v FilteredView) Records() []Record {
	out := make([]Record, len(v.indices))
	for i, idx := range v.indices {
		out[i] = v.dataset.records[idx]
	}
	return out
}

// AsDataset copies the view into a standalone Dataset with the same schema.
func (v FilteredView) AsDataset() *Dataset {
	return NewDataset(v.Schema(), v.Records())
}
