package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"

	"sales-dashboard/internal/models"
)

const (
	batchSize  = 10000
	maxWorkers = 10
	maxWarning = 1000
)

// dateFormats are tried in order. The first entry is the layout used by the
// marketplace sales report (month-day-two digit year).
var dateFormats = []string{
	"01-02-06",
	"2006-01-02",
	"01/02/2006",
	"02-Jan-2006",
	time.RFC3339,
}

// Drop reasons reported in Diagnostics.DroppedByReason.
const (
	DropMissingOrderID = "missing_order_id"
	DropMissingDate    = "missing_date"
	DropMissingAmount  = "missing_amount"
)

type Warning struct {
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Message string `json:"message"`
}

type ColumnMissing struct {
	Column  string  `json:"column"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Diagnostics describes what happened to the raw rows during a load.
type Diagnostics struct {
	Rows            int             `json:"rows"`
	Loaded          int             `json:"loaded"`
	Dropped         int             `json:"dropped"`
	DroppedByReason map[string]int  `json:"dropped_by_reason"`
	Missing         []ColumnMissing `json:"missing"`
	Warnings        []Warning       `json:"warnings,omitempty"`
	Latin1          bool            `json:"latin1"`
}

type Result struct {
	Dataset     *models.Dataset
	Diagnostics Diagnostics
}

// LoadFile opens path and loads it with Load.
func LoadFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return Load(ctx, f)
}

// Load parses delimited input into a normalized Dataset. Any malformed value
// aborts the load with a *LoadError; rows lacking an order id, date or amount
// are dropped and counted instead.
func Load(ctx context.Context, r io.Reader) (*Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	var diag Diagnostics
	if !utf8.Valid(raw) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, &LoadError{Kind: KindMalformed, Err: err}
		}
		raw = decoded
		diag.Latin1 = true
	}

	headers, rows, lines, err := readRows(raw)
	if err != nil {
		return nil, err
	}

	schema, err := mapSchema(headers)
	if err != nil {
		return nil, err
	}

	parsed := make([]parsedRow, len(rows))
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		if err := parseBatch(ctx, schema, rows[start:end], lines[start:end], parsed[start:end]); err != nil {
			return nil, err
		}
	}

	diag.Rows = len(rows)
	diag.DroppedByReason = make(map[string]int)
	diag.Missing = missingSummary(schema, rows)

	records := make([]models.Record, 0, len(rows))
	for _, p := range parsed {
		if p.err != nil {
			return nil, p.err
		}
		for _, w := range p.warnings {
			if len(diag.Warnings) < maxWarning {
				diag.Warnings = append(diag.Warnings, w)
			}
		}
		if p.dropReason != "" {
			diag.Dropped++
			diag.DroppedByReason[p.dropReason]++
			continue
		}
		records = append(records, p.record)
	}
	diag.Loaded = len(records)

	return &Result{
		Dataset:     models.NewDataset(schema, records),
		Diagnostics: diag,
	}, nil
}

func readRows(raw []byte) ([]string, [][]string, []int, error) {
	reader := csv.NewReader(bytes.NewReader(raw))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil, &LoadError{Kind: KindEmpty}
	}
	if err != nil {
		return nil, nil, nil, malformed(err)
	}

	var rows [][]string
	var lines []int
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, nil, malformed(err)
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, row)
		lines = append(lines, line)
	}
	if len(rows) == 0 {
		return nil, nil, nil, &LoadError{Kind: KindEmpty}
	}
	return headers, rows, lines, nil
}

func malformed(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &LoadError{Kind: KindMalformed, Row: perr.Line, Err: perr.Err}
	}
	return &LoadError{Kind: KindMalformed, Err: err}
}

type parsedRow struct {
	record     models.Record
	dropReason string
	warnings   []Warning
	err        *LoadError
}

// parseBatch fills out[i] from rows[i]; slots keep results in source order
// regardless of which worker finishes first.
func parseBatch(ctx context.Context, schema models.Schema, rows [][]string, lines []int, out []parsedRow) error {
	var g errgroup.Group
	g.SetLimit(maxWorkers)

	chunk := max(1, (len(rows)+maxWorkers-1)/maxWorkers)
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				out[i] = parseRow(schema, rows[i], lines[i])
			}
			return nil
		})
	}
	return g.Wait()
}

func parseRow(schema models.Schema, row []string, line int) parsedRow {
	var p parsedRow
	rec := &p.record

	for i, col := range schema.Columns {
		raw := ""
		if i < len(row) {
			raw = strings.TrimSpace(row[i])
		}

		switch col.Field {
		case models.FieldOrderID:
			rec.OrderID = raw
		case models.FieldOrderDate:
			if raw == "" {
				break
			}
			d, ok := parseDate(raw)
			if !ok {
				p.err = &LoadError{Kind: KindBadDate, Row: line, Column: col.Name, Raw: raw}
				return p
			}
			rec.OrderDate = d
		case models.FieldAmount:
			if raw == "" {
				break
			}
			amount, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
			if err != nil {
				p.err = &LoadError{Kind: KindBadNumber, Row: line, Column: col.Name, Raw: raw}
				return p
			}
			if amount.IsNegative() {
				p.err = &LoadError{Kind: KindNegativeAmount, Row: line, Column: col.Name, Raw: raw}
				return p
			}
			rec.Amount = amount
		case models.FieldQuantity:
			if raw == "" {
				p.warnings = append(p.warnings, Warning{Row: line, Column: col.Name, Message: "empty quantity read as 0"})
				break
			}
			qty, err := strconv.Atoi(raw)
			if err != nil || qty < 0 {
				p.err = &LoadError{Kind: KindBadNumber, Row: line, Column: col.Name, Raw: raw}
				return p
			}
			rec.Quantity = qty
		case models.FieldB2B:
			b2b, ok := parseBool(raw)
			if !ok {
				p.warnings = append(p.warnings, Warning{Row: line, Column: col.Name, Message: fmt.Sprintf("unrecognized flag %q read as false", raw)})
			}
			rec.IsB2B = b2b
		case models.FieldCategory:
			rec.Category = raw
		case models.FieldSize:
			rec.Size = raw
		case models.FieldCurrency:
			rec.Currency = raw
		case models.FieldFulfillment:
			rec.FulfillmentMethod = raw
		case models.FieldStatus:
			rec.OrderStatus = raw
		case models.FieldState:
			rec.State = raw
		case models.FieldCity:
			rec.City = raw
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			rec.Extra[col.ExtraKey()] = raw
		}
	}

	switch {
	case rec.OrderID == "":
		p.dropReason = DropMissingOrderID
	case rec.OrderDate.IsZero():
		p.dropReason = DropMissingDate
	case !hasValue(schema, row, models.FieldAmount):
		p.dropReason = DropMissingAmount
	}
	return p
}

func hasValue(schema models.Schema, row []string, f models.Field) bool {
	i := slices.IndexFunc(schema.Columns, func(c models.Column) bool { return c.Field == f })
	return i >= 0 && i < len(row) && strings.TrimSpace(row[i]) != ""
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			y, m, d := t.UTC().Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(raw) {
	case "true", "yes", "1":
		return true, true
	case "false", "no", "0", "":
		return false, true
	default:
		return false, false
	}
}

func missingSummary(schema models.Schema, rows [][]string) []ColumnMissing {
	counts := make([]int, len(schema.Columns))
	for _, row := range rows {
		for i := range schema.Columns {
			if i >= len(row) || strings.TrimSpace(row[i]) == "" {
				counts[i]++
			}
		}
	}

	var out []ColumnMissing
	for i, c := range schema.Columns {
		if counts[i] == 0 {
			continue
		}
		pct := decimal.NewFromInt(int64(counts[i]) * 100).
			Div(decimal.NewFromInt(int64(len(rows)))).
			Round(2).
			InexactFloat64()
		out = append(out, ColumnMissing{Column: c.Name, Count: counts[i], Percent: pct})
	}
	slices.SortFunc(out, func(a, b ColumnMissing) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Column, b.Column)
	})
	return out
}
