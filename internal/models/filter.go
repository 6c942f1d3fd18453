package models

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

const DefaultTopN = 10

// FilterState is the immutable set of user selections for one interaction.
// Empty sets mean no restriction on that dimension; a nil B2B means any.
// Zero DateFrom/DateTo leave that side of the range open.
type FilterState struct {
	DateFrom           time.Time `json:"date_from"`
	DateTo             time.Time `json:"date_to"`
	Categories         []string  `json:"categories,omitempty"`
	Sizes              []string  `json:"sizes,omitempty"`
	States             []string  `json:"states,omitempty"`
	Cities             []string  `json:"cities,omitempty"`
	FulfillmentMethods []string  `json:"fulfillment_methods,omitempty"`
	B2B                *bool     `json:"b2b,omitempty"`
	TopN               int       `json:"top_n"`
	SearchTerm         string    `json:"search_term,omitempty"`
}

// Normalize returns a copy with every set sorted and de-duplicated and the
// search term trimmed. Two states with equal selections normalize identically.
func (f FilterState) Normalize() FilterState {
	out := f
	out.Categories = normalizeSet(f.Categories)
	out.Sizes = normalizeSet(f.Sizes)
	out.States = normalizeSet(f.States)
	out.Cities = normalizeSet(f.Cities)
	out.FulfillmentMethods = normalizeSet(f.FulfillmentMethods)
	out.SearchTerm = strings.TrimSpace(f.SearchTerm)
	if f.B2B != nil {
		v := *f.B2B
		out.B2B = &v
	}
	return out
}

// Key is a canonical encoding of the field values, used for value equality
// and as a cache key.
func (f FilterState) Key() string {
	n := f.Normalize()
	var b strings.Builder
	b.WriteString("from=")
	b.WriteString(formatDay(n.DateFrom))
	b.WriteString("|to=")
	b.WriteString(formatDay(n.DateTo))
	writeSet(&b, "cat", n.Categories)
	writeSet(&b, "size", n.Sizes)
	writeSet(&b, "state", n.States)
	writeSet(&b, "city", n.Cities)
	writeSet(&b, "ful", n.FulfillmentMethods)
	b.WriteString("|b2b=")
	if n.B2B == nil {
		b.WriteString("any")
	} else {
		b.WriteString(strconv.FormatBool(*n.B2B))
	}
	b.WriteString("|top=")
	b.WriteString(strconv.Itoa(n.TopN))
	b.WriteString("|q=")
	b.WriteString(strconv.Quote(n.SearchTerm))
	return b.String()
}

func (f FilterState) Equal(other FilterState) bool {
	return f.Key() == other.Key()
}

func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}

func writeSet(b *strings.Builder, name string, values []string) {
	b.WriteString("|")
	b.WriteString(name)
	b.WriteString("=")
	for i, v := range values {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(strconv.Quote(v))
	}
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return "*"
	}
	return t.Format("2006-01-02")
}

// BoolPtr is a convenience for building optional flags.
func BoolPtr(v bool) *bool { return &v }
