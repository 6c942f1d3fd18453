package filter

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"sales-dashboard/internal/models"
)

const queryDateFormat = "2006-01-02"

// FromQuery builds a validated FilterState from request parameters:
// from, to (YYYY-MM-DD), repeated category, size, state, city and
// fulfillment, b2b (true|false, absent for any), top_n and q.
func FromQuery(values url.Values, defaultTopN int) (models.FilterState, error) {
	f := models.FilterState{
		Categories:         nonEmpty(values["category"]),
		Sizes:              nonEmpty(values["size"]),
		States:             nonEmpty(values["state"]),
		Cities:             nonEmpty(values["city"]),
		FulfillmentMethods: nonEmpty(values["fulfillment"]),
		SearchTerm:         values.Get("q"),
		TopN:               defaultTopN,
	}

	var err error
	if f.DateFrom, err = parseDay("from", values.Get("from")); err != nil {
		return models.FilterState{}, err
	}
	if f.DateTo, err = parseDay("to", values.Get("to")); err != nil {
		return models.FilterState{}, err
	}

	if raw := strings.TrimSpace(values.Get("b2b")); raw != "" && raw != "any" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return models.FilterState{}, &FilterError{Field: "b2b", Reason: "expected true, false or any"}
		}
		f.B2B = &b
	}

	if raw := strings.TrimSpace(values.Get("top_n")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return models.FilterState{}, &FilterError{Field: "top_n", Reason: "not an integer"}
		}
		f.TopN = n
	}

	f = f.Normalize()
	if err := Validate(f); err != nil {
		return models.FilterState{}, err
	}
	return f, nil
}

// ToQuery is the inverse of FromQuery.
func ToQuery(f models.FilterState) url.Values {
	v := url.Values{}
	if !f.DateFrom.IsZero() {
		v.Set("from", f.DateFrom.Format(queryDateFormat))
	}
	if !f.DateTo.IsZero() {
		v.Set("to", f.DateTo.Format(queryDateFormat))
	}
	for _, c := range f.Categories {
		v.Add("category", c)
	}
	for _, s := range f.Sizes {
		v.Add("size", s)
	}
	for _, s := range f.States {
		v.Add("state", s)
	}
	for _, c := range f.Cities {
		v.Add("city", c)
	}
	for _, m := range f.FulfillmentMethods {
		v.Add("fulfillment", m)
	}
	if f.B2B != nil {
		v.Set("b2b", strconv.FormatBool(*f.B2B))
	}
	if f.TopN > 0 {
		v.Set("top_n", strconv.Itoa(f.TopN))
	}
	if f.SearchTerm != "" {
		v.Set("q", f.SearchTerm)
	}
	return v
}

func parseDay(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(queryDateFormat, raw)
	if err != nil {
		return time.Time{}, &FilterError{Field: field, Reason: "expected YYYY-MM-DD"}
	}
	return t, nil
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
