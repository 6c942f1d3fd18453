package filter

import (
	"fmt"

	"sales-dashboard/internal/models"
	"sales-dashboard/internal/search"
)

// FilterError reports an invalid FilterState. States built through FromQuery
// are already validated, so seeing one from Apply means a caller bug.
type FilterError struct {
	Field  string
	Reason string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter: %s: %s", e.Field, e.Reason)
}

func Validate(f models.FilterState) error {
	if f.TopN <= 0 {
		return &FilterError{Field: "top_n", Reason: fmt.Sprintf("must be positive, got %d", f.TopN)}
	}
	if !f.DateFrom.IsZero() && !f.DateTo.IsZero() && f.DateFrom.After(f.DateTo) {
		return &FilterError{Field: "date_from", Reason: "after date_to"}
	}
	return nil
}

type stringSet map[string]struct{}

func newSet(values []string) stringSet {
	if len(values) == 0 {
		return nil
	}
	s := make(stringSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// allows treats a nil set as unrestricted.
func (s stringSet) allows(v string) bool {
	if s == nil {
		return true
	}
	_, ok := s[v]
	return ok
}

// Apply returns the records of d matching every predicate of f, in dataset
// order. Set membership is exact and case-sensitive; the date range is
// inclusive on both ends. Apply panics with a *FilterError if f is invalid.
func Apply(d *models.Dataset, f models.FilterState) models.FilteredView {
	if err := Validate(f); err != nil {
		panic(err)
	}

	categories := newSet(f.Categories)
	sizes := newSet(f.Sizes)
	states := newSet(f.States)
	cities := newSet(f.Cities)
	fulfillment := newSet(f.FulfillmentMethods)
	term := search.Fold(f.SearchTerm)

	indices := make([]int, 0, d.Len())
	for i := 0; i < d.Len(); i++ {
		rec := d.At(i)
		if !f.DateFrom.IsZero() && rec.OrderDate.Before(f.DateFrom) {
			continue
		}
		if !f.DateTo.IsZero() && rec.OrderDate.After(f.DateTo) {
			continue
		}
		if !categories.allows(rec.Category) ||
			!sizes.allows(rec.Size) ||
			!states.allows(rec.State) ||
			!cities.allows(rec.City) ||
			!fulfillment.allows(rec.FulfillmentMethod) {
			continue
		}
		if f.B2B != nil && rec.IsB2B != *f.B2B {
			continue
		}
		if term != "" && !search.Contains(rec.OrderID, term) {
			continue
		}
		indices = append(indices, i)
	}
	return models.NewFilteredView(d, indices)
}
