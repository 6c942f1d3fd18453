package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterState_Normalize(t *testing.T) {
	flag := true
	f := FilterState{
		Categories: []string{"kurta", "Set", "kurta"},
		Sizes:      []string{},
		B2B:        &flag,
		SearchTerm: "  405- ",
		TopN:       5,
	}

	n := f.Normalize()

	assert.Equal(t, []string{"Set", "kurta"}, n.Categories)
	assert.Nil(t, n.Sizes)
	assert.Equal(t, "405-", n.SearchTerm)
	assert.Equal(t, []string{"kurta", "Set", "kurta"}, f.Categories, "input is not modified")

	flag = false
	assert.True(t, *n.B2B, "normalized copy does not alias the flag")
}

func TestFilterState_Equal(t *testing.T) {
	base := FilterState{
		DateFrom: time.Date(2022, 4, 1, 0, 0, 0, 0, time.UTC),
		States:   []string{"GOA", "KERALA"},
		TopN:     10,
	}

	tests := []struct {
		name  string
		other FilterState
		equal bool
	}{
		{"same", base, true},
		{"reordered set", FilterState{DateFrom: base.DateFrom, States: []string{"KERALA", "GOA", "GOA"}, TopN: 10}, true},
		{"padded search", FilterState{DateFrom: base.DateFrom, States: base.States, TopN: 10, SearchTerm: " "}, true},
		{"different top n", FilterState{DateFrom: base.DateFrom, States: base.States, TopN: 5}, false},
		{"flag set", FilterState{DateFrom: base.DateFrom, States: base.States, TopN: 10, B2B: BoolPtr(false)}, false},
		{"open start", FilterState{States: base.States, TopN: 10}, false},
		{"value moved between sets", FilterState{DateFrom: base.DateFrom, Cities: base.States, TopN: 10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, base.Equal(tt.other))
			assert.Equal(t, tt.equal, base.Key() == tt.other.Key())
		})
	}
}

func TestFilterState_KeyQuotesValues(t *testing.T) {
	a := FilterState{Categories: []string{"a,b"}, TopN: 1}
	b := FilterState{Categories: []string{"a", "b"}, TopN: 1}
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestFilteredView(t *testing.T) {
	schema := Schema{Columns: []Column{
		{Name: "Order ID", Field: FieldOrderID},
		{Name: "Amount", Field: FieldAmount},
	}}
	d := NewDataset(schema, []Record{{OrderID: "A"}, {OrderID: "B"}, {OrderID: "C"}})

	v := NewFilteredView(d, []int{0, 2})
	assert.Equal(t, 2, v.Len())
	assert.Equal(t, "C", v.At(1).OrderID)
	assert.Equal(t, []string{"Order ID", "Amount"}, v.Schema().Headers())
	assert.True(t, v.Schema().Has(FieldAmount))
	assert.False(t, v.Schema().Has(FieldCity))

	copied := v.AsDataset()
	assert.Equal(t, 2, copied.Len())
	assert.Equal(t, "A", copied.At(0).OrderID)

	assert.Equal(t, 3, d.All().Len())
	assert.Equal(t, 0, FilteredView{}.Len())
	assert.Equal(t, Schema{}, FilteredView{}.Schema())
}
