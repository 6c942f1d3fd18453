package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"sales-dashboard/internal/models"
)

// OutputDateFormat is the layout written for order dates. It is one of the
// accepted input layouts, so written files load back unchanged.
const OutputDateFormat = "2006-01-02"

// Write serializes the view as CSV with the source schema's column order.
func Write(w io.Writer, view models.FilteredView) error {
	schema := view.Schema()
	cw := csv.NewWriter(w)

	if err := cw.Write(schema.Headers()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(schema.Columns))
	for i := 0; i < view.Len(); i++ {
		rec := view.At(i)
		for j, col := range schema.Columns {
			row[j] = formatField(rec, col)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatField(rec models.Record, col models.Column) string {
	switch col.Field {
	case models.FieldOrderID:
		return rec.OrderID
	case models.FieldOrderDate:
		return rec.OrderDate.Format(OutputDateFormat)
	case models.FieldCategory:
		return rec.Category
	case models.FieldSize:
		return rec.Size
	case models.FieldQuantity:
		return strconv.Itoa(rec.Quantity)
	case models.FieldAmount:
		return rec.Amount.String()
	case models.FieldCurrency:
		return rec.Currency
	case models.FieldFulfillment:
		return rec.FulfillmentMethod
	case models.FieldStatus:
		return rec.OrderStatus
	case models.FieldB2B:
		if rec.IsB2B {
			return "True"
		}
		return "False"
	case models.FieldState:
		return rec.State
	case models.FieldCity:
		return rec.City
	default:
		return rec.Extra[col.ExtraKey()]
	}
}
