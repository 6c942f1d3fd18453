// Package search looks up records by order identifier.
//
// Matching is a case-insensitive substring test. An empty term matches
// nothing here, whereas the filter engine treats an empty search term as no
// restriction; callers that want "everything" must use the filter.
package search

import (
	"strings"

	"sales-dashboard/internal/models"
)

// Fold prepares a term or identifier for matching.
func Fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Contains reports whether orderID contains the already folded term.
func Contains(orderID, foldedTerm string) bool {
	return strings.Contains(strings.ToLower(orderID), foldedTerm)
}

// Index holds folded order ids alongside dataset positions. It is built once
// per dataset and is safe for concurrent reads.
type Index struct {
	dataset *models.Dataset
	folded  []string
	exact   map[string][]int
}

func NewIndex(d *models.Dataset) *Index {
	idx := &Index{
		dataset: d,
		folded:  make([]string, d.Len()),
		exact:   make(map[string][]int),
	}
	for i := 0; i < d.Len(); i++ {
		id := d.At(i).OrderID
		idx.folded[i] = strings.ToLower(id)
		idx.exact[id] = append(idx.exact[id], i)
	}
	return idx
}

// Find returns records whose order id contains term, in dataset order.
func (idx *Index) Find(term string) []models.Record {
	folded := Fold(term)
	if folded == "" {
		return nil
	}
	var out []models.Record
	for i, id := range idx.folded {
		if strings.Contains(id, folded) {
			out = append(out, idx.dataset.At(i))
		}
	}
	return out
}

// Lookup returns the records with exactly this order id. An order id can
// span several rows, one per line item.
func (idx *Index) Lookup(orderID string) []models.Record {
	positions := idx.exact[strings.TrimSpace(orderID)]
	out := make([]models.Record, len(positions))
	for i, p := range positions {
		out[i] = idx.dataset.At(p)
	}
	return out
}

// FindByOrderID scans d without building an index.
func FindByOrderID(d *models.Dataset, term string) []models.Record {
	folded := Fold(term)
	if folded == "" {
		return nil
	}
	var out []models.Record
	for i := 0; i < d.Len(); i++ {
		if rec := d.At(i); Contains(rec.OrderID, folded) {
			out = append(out, rec)
		}
	}
	return out
}
