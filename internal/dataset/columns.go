package dataset

import (
	"fmt"
	"strings"

	"sales-dashboard/internal/models"
)

// headerAliases maps normalized header spellings to Record fields. The keys
// cover the column names of the marketplace sales report as well as plain
// snake_case names.
var headerAliases = map[string]models.Field{
	"order-id":           models.FieldOrderID,
	"orderid":            models.FieldOrderID,
	"date":               models.FieldOrderDate,
	"order-date":         models.FieldOrderDate,
	"category":           models.FieldCategory,
	"size":               models.FieldSize,
	"qty":                models.FieldQuantity,
	"quantity":           models.FieldQuantity,
	"amount":             models.FieldAmount,
	"currency":           models.FieldCurrency,
	"fulfilment":         models.FieldFulfillment,
	"fulfillment":        models.FieldFulfillment,
	"fulfillment-method": models.FieldFulfillment,
	"status":             models.FieldStatus,
	"order-status":       models.FieldStatus,
	"b2b":                models.FieldB2B,
	"is-b2b":             models.FieldB2B,
	"ship-state":         models.FieldState,
	"state":              models.FieldState,
	"ship-city":          models.FieldCity,
	"city":               models.FieldCity,
}

var requiredFields = []models.Field{
	models.FieldOrderID,
	models.FieldOrderDate,
	models.FieldAmount,
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer("_", "-", " ", "-").Replace(h)
}

// mapSchema assigns each header to a field. When two headers alias the same
// field only the first is typed; later ones are kept as extra columns.
// Extra columns repeating a header name get a positional key so each keeps
// its own value.
func mapSchema(headers []string) (models.Schema, error) {
	cols := make([]models.Column, len(headers))
	seen := make(map[models.Field]bool)
	extraKeys := make(map[string]bool)
	for i, h := range headers {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		field, ok := headerAliases[normalizeHeader(h)]
		if !ok || seen[field] {
			field = models.FieldExtra
		}
		seen[field] = true
		cols[i] = models.Column{Name: name, Field: field}

		if field != models.FieldExtra {
			continue
		}
		key := name
		for n := i + 1; extraKeys[key]; n++ {
			key = fmt.Sprintf("%s#%d", name, n)
		}
		extraKeys[key] = true
		if key != name {
			cols[i].Key = key
		}
	}

	schema := models.Schema{Columns: cols}
	for _, f := range requiredFields {
		if !schema.Has(f) {
			return models.Schema{}, &LoadError{Kind: KindMissingColumn, Column: f.String()}
		}
	}
	return schema, nil
}
