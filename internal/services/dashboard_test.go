package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"sales-dashboard/internal/dataset"
	"sales-dashboard/internal/export"
	"sales-dashboard/internal/filter"
	"sales-dashboard/internal/insights"
	"sales-dashboard/internal/models"
)

const testCSV = `Order ID,Date,Status,Fulfilment,Category,Size,Qty,Amount,ship-city,ship-state,B2B
A-1,2024-01-05,Shipped,Amazon,Electronics,M,1,100,MUMBAI,MAHARASHTRA,False
A-2,2024-01-20,Shipped,Merchant,Electronics,L,2,50,PUNE,MAHARASHTRA,True
B-3,2024-02-01,Cancelled,Amazon,Clothing,S,1,200,BENGALURU,KARNATAKA,False
B-4,2024-02-03,Shipped,Amazon,Clothing,S,1,,BENGALURU,KARNATAKA,False
`

func createTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDashboard(t *testing.T, opts Options) *Dashboard {
	t.Helper()
	d, err := NewDashboard(opts, testLogger())
	if err != nil {
		t.Fatalf("NewDashboard() error = %v", err)
	}
	return d
}

func loadedDashboard(t *testing.T, opts Options) *Dashboard {
	t.Helper()
	d := newTestDashboard(t, opts)
	if err := d.LoadFromCSV(context.Background(), createTempCSV(t, testCSV)); err != nil {
		t.Fatalf("LoadFromCSV() error = %v", err)
	}
	return d
}

type stubGenerator struct {
	mu      sync.Mutex
	prompts []string
	text    string
	err     error
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.text, g.err
}

type memoryPublisher struct {
	name string
	body []byte
}

func (p *memoryPublisher) Publish(_ context.Context, fileName string, body []byte) (export.Published, error) {
	p.name = fileName
	p.body = body
	return export.Published{
		Key:  export.ObjectKey("test", fileName),
		URL:  "http://storage.local/" + fileName,
		Size: len(body),
	}, nil
}

func allRecords(d *Dashboard) models.FilterState {
	return models.FilterState{TopN: d.DefaultTopN()}
}

func TestNewDashboard_Defaults(t *testing.T) {
	d := newTestDashboard(t, Options{})

	if d.DefaultTopN() != models.DefaultTopN {
		t.Errorf("DefaultTopN() = %d, want %d", d.DefaultTopN(), models.DefaultTopN)
	}
	if d.prompts.MaxChars() != 4000 {
		t.Errorf("prompt budget = %d, want 4000", d.prompts.MaxChars())
	}
	if d.cache != nil {
		t.Error("cache should be disabled without a cache dir")
	}
	if got := d.Stats()["loaded"]; got != false {
		t.Errorf("Stats()[loaded] = %v, want false", got)
	}
}

func TestDashboard_RequiresDataset(t *testing.T) {
	d := newTestDashboard(t, Options{})
	ctx := context.Background()

	if _, err := d.Summary(ctx, allRecords(d)); !errors.Is(err, ErrNoDataset) {
		t.Errorf("Summary() error = %v, want ErrNoDataset", err)
	}
	if _, err := d.Search("A"); !errors.Is(err, ErrNoDataset) {
		t.Errorf("Search() error = %v, want ErrNoDataset", err)
	}
	if _, _, err := d.ExportCSV(ctx, allRecords(d)); !errors.Is(err, ErrNoDataset) {
		t.Errorf("ExportCSV() error = %v, want ErrNoDataset", err)
	}
	if _, err := d.Insights(ctx, allRecords(d)); !errors.Is(err, ErrNoDataset) {
		t.Errorf("Insights() error = %v, want ErrNoDataset", err)
	}
	if _, err := d.FilterOptions(); !errors.Is(err, ErrNoDataset) {
		t.Errorf("FilterOptions() error = %v, want ErrNoDataset", err)
	}
}

func TestDashboard_LoadFromCSV(t *testing.T) {
	d := loadedDashboard(t, Options{})

	diag, err := d.Diagnostics()
	if err != nil {
		t.Fatal(err)
	}
	if diag.Loaded != 3 || diag.Dropped != 1 {
		t.Errorf("Diagnostics() loaded=%d dropped=%d, want 3 and 1", diag.Loaded, diag.Dropped)
	}

	stats := d.Stats()
	if stats["record_count"] != 3 {
		t.Errorf("Stats()[record_count] = %v, want 3", stats["record_count"])
	}
}

func TestDashboard_LoadFailureKeepsPrevious(t *testing.T) {
	d := loadedDashboard(t, Options{})

	err := d.LoadFromCSV(context.Background(), createTempCSV(t, "Order ID,Date\nX,2024-01-01\n"))
	if !errors.Is(err, dataset.ErrMissingColumn) {
		t.Fatalf("LoadFromCSV() error = %v, want ErrMissingColumn", err)
	}

	snap, err := d.Summary(context.Background(), allRecords(d))
	if err != nil {
		t.Fatal(err)
	}
	if snap.KPIs.Records != 3 {
		t.Errorf("previous dataset replaced, records = %d", snap.KPIs.Records)
	}
}

func TestDashboard_LoadFromCSVUsesCache(t *testing.T) {
	cacheDir := t.TempDir()
	path := createTempCSV(t, testCSV)

	first := newTestDashboard(t, Options{CacheDir: cacheDir})
	if err := first.LoadFromCSV(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(cacheDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("cache dir entries = %d, err = %v", len(entries), err)
	}

	// Make the source unreadable as CSV; a fresh cache still serves it.
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatal(err)
	}

	second := newTestDashboard(t, Options{CacheDir: cacheDir})
	if err := second.LoadFromCSV(context.Background(), path); err != nil {
		t.Fatalf("LoadFromCSV() from cache error = %v", err)
	}
	snap, err := second.Summary(context.Background(), allRecords(second))
	if err != nil {
		t.Fatal(err)
	}
	if snap.KPIs.Records != 3 {
		t.Errorf("records from cache = %d, want 3", snap.KPIs.Records)
	}
}

func TestDashboard_Summary(t *testing.T) {
	d := loadedDashboard(t, Options{})
	ctx := context.Background()

	f := allRecords(d)
	f.Categories = []string{"Electronics"}
	snap, err := d.Summary(ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	if got := snap.KPIs.TotalSales.String(); got != "150" {
		t.Errorf("TotalSales = %s, want 150", got)
	}
	if snap.KPIs.TotalOrders != 2 {
		t.Errorf("TotalOrders = %d, want 2", snap.KPIs.TotalOrders)
	}

	bad := allRecords(d)
	bad.TopN = 0
	var fErr *filter.FilterError
	if _, err := d.Summary(ctx, bad); !errors.As(err, &fErr) {
		t.Errorf("Summary() with top_n 0 error = %v, want FilterError", err)
	}
}

func TestDashboard_SummaryCache(t *testing.T) {
	d := loadedDashboard(t, Options{})
	ctx := context.Background()

	f := allRecords(d)
	f.States = []string{"KARNATAKA", "MAHARASHTRA"}
	equivalent := allRecords(d)
	equivalent.States = []string{"MAHARASHTRA", "KARNATAKA", "KARNATAKA"}

	if _, err := d.Summary(ctx, f); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Summary(ctx, equivalent); err != nil {
		t.Fatal(err)
	}
	if d.hits.Load() != 1 || d.misses.Load() != 1 {
		t.Errorf("hits=%d misses=%d, want 1 and 1", d.hits.Load(), d.misses.Load())
	}

	// A reload must not serve snapshots of the previous dataset.
	if _, err := d.LoadFromReader(ctx, "upload.csv", strings.NewReader(testCSV+"C-5,2024-03-01,Shipped,Amazon,Toys,M,1,10,GOA,GOA,False\n")); err != nil {
		t.Fatal(err)
	}
	snap, err := d.Summary(ctx, allRecords(d))
	if err != nil {
		t.Fatal(err)
	}
	if snap.KPIs.Records != 4 {
		t.Errorf("records after reload = %d, want 4", snap.KPIs.Records)
	}
}

func TestDashboard_SearchAndOrder(t *testing.T) {
	d := loadedDashboard(t, Options{})

	found, err := d.Search("a-")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 {
		t.Errorf("Search(a-) = %d records, want 2", len(found))
	}

	none, err := d.Search("")
	if err != nil {
		t.Fatal(err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("Search(\"\") = %v, want empty non-nil", none)
	}

	order, err := d.Order("B-3")
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 1 || order[0].Category != "Clothing" {
		t.Errorf("Order(B-3) = %+v", order)
	}
}

func TestDashboard_ExportCSV(t *testing.T) {
	d := loadedDashboard(t, Options{})

	f := allRecords(d)
	f.FulfillmentMethods = []string{"Amazon"}
	body, records, err := d.ExportCSV(context.Background(), f)
	if err != nil {
		t.Fatal(err)
	}
	if records != 2 {
		t.Errorf("records = %d, want 2", records)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 3 {
		t.Fatalf("export has %d lines, want header and 2 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Order ID,Date,Status,Fulfilment") {
		t.Errorf("header = %q, want source column order", lines[0])
	}
}

func TestDashboard_PublishExport(t *testing.T) {
	ctx := context.Background()

	d := loadedDashboard(t, Options{})
	if _, err := d.PublishExport(ctx, allRecords(d)); !errors.Is(err, export.ErrNotConfigured) {
		t.Errorf("PublishExport() without storage error = %v", err)
	}

	pub := &memoryPublisher{}
	d = loadedDashboard(t, Options{Publisher: pub})
	published, err := d.PublishExport(ctx, allRecords(d))
	if err != nil {
		t.Fatal(err)
	}
	if published.Records != 3 {
		t.Errorf("Records = %d, want 3", published.Records)
	}
	if !strings.HasPrefix(pub.name, "sales-export-") || published.Size != len(pub.body) {
		t.Errorf("published %q with %d bytes, stored %d", pub.name, published.Size, len(pub.body))
	}
}

func TestDashboard_Insights(t *testing.T) {
	gen := &stubGenerator{text: "1. Electronics leads."}
	d := loadedDashboard(t, Options{Insights: gen, MaxPromptChars: 2000})

	f := allRecords(d)
	f.States = []string{"MAHARASHTRA"}
	insight, err := d.Insights(context.Background(), f)
	if err != nil {
		t.Fatal(err)
	}
	if insight.Text != "1. Electronics leads." {
		t.Errorf("Text = %q", insight.Text)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("generator called %d times, want 1", len(gen.prompts))
	}
	p := gen.prompts[0]
	if !strings.Contains(p, "states: MAHARASHTRA") || !strings.Contains(p, "total_sales: 150.00") {
		t.Errorf("prompt does not describe the filtered view:\n%s", p)
	}
	if insight.PromptChars > 2000 {
		t.Errorf("PromptChars = %d exceeds budget", insight.PromptChars)
	}
}

func TestDashboard_InsightsFailureLeavesSummary(t *testing.T) {
	gen := &stubGenerator{err: &insights.AiError{Kind: insights.KindRateLimited}}
	d := loadedDashboard(t, Options{Insights: gen})
	ctx := context.Background()

	_, err := d.Insights(ctx, allRecords(d))
	if insights.KindOf(err) != insights.KindRateLimited {
		t.Errorf("Insights() error = %v, want rate limited", err)
	}

	snap, err := d.Summary(ctx, allRecords(d))
	if err != nil || snap.KPIs.Records != 3 {
		t.Errorf("Summary() after insight failure = %d records, err %v", snap.KPIs.Records, err)
	}
}

func TestDashboard_InsightsDisabled(t *testing.T) {
	d := loadedDashboard(t, Options{})
	_, err := d.Insights(context.Background(), allRecords(d))
	if !errors.Is(err, insights.ErrDisabled) {
		t.Errorf("Insights() error = %v, want ErrDisabled", err)
	}
}

func TestDashboard_FilterOptions(t *testing.T) {
	d := loadedDashboard(t, Options{})

	opts, err := d.FilterOptions()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(opts.Categories, ",") != "Clothing,Electronics" {
		t.Errorf("Categories = %v", opts.Categories)
	}
	if strings.Join(opts.Cities, ",") != "BENGALURU,MUMBAI,PUNE" {
		t.Errorf("Cities = %v", opts.Cities)
	}
	if !opts.MinDate.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)) || !opts.MaxDate.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date range = %s .. %s", opts.MinDate, opts.MaxDate)
	}
}

func TestDashboard_ConcurrentReads(t *testing.T) {
	d := loadedDashboard(t, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f := allRecords(d)
			f.TopN = 1 + i%3
			if _, err := d.Summary(ctx, f); err != nil {
				t.Error(err)
			}
			if i%5 == 0 {
				_, _ = d.LoadFromReader(ctx, "upload.csv", strings.NewReader(testCSV))
			}
		}()
	}
	wg.Wait()
}

func BenchmarkDashboard_Summary(b *testing.B) {
	d, err := NewDashboard(Options{}, testLogger())
	if err != nil {
		b.Fatal(err)
	}
	if _, err := d.LoadFromReader(context.Background(), "bench.csv", strings.NewReader(testCSV)); err != nil {
		b.Fatal(err)
	}
	f := models.FilterState{TopN: 5}

	for b.Loop() {
		d.Summary(context.Background(), f)
	}
}
