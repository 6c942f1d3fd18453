package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"sales-dashboard/internal/aggregate"
	"sales-dashboard/internal/dataset"
	"sales-dashboard/internal/export"
	"sales-dashboard/internal/filter"
	"sales-dashboard/internal/insights"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/prompt"
	"sales-dashboard/internal/search"
)

const defaultSnapshotCacheSize = 128

// ErrNoDataset is returned by operations that need a loaded dataset.
var ErrNoDataset = errors.New("no dataset loaded")

type Options struct {
	DefaultTopN       int
	SnapshotCacheSize int
	MaxPromptChars    int
	// CacheDir holds gob caches of parsed sources. Empty disables caching.
	CacheDir  string
	Insights  insights.Generator
	Publisher export.Publisher
}

// session is everything derived from one loaded source. It is never
// mutated after construction; a reload swaps in a new session.
type session struct {
	data        *models.Dataset
	index       *search.Index
	diagnostics dataset.Diagnostics
	source      string
	loadedAt    time.Time
	options     FilterOptions
	generation  int64
}

// Dashboard owns the loaded dataset and runs the recompute pipeline
// (filter, summarize, prompt) for each request.
type Dashboard struct {
	current   atomic.Pointer[session]
	snapshots *lru.Cache[string, models.SummarySnapshot]
	hits      atomic.Int64
	misses    atomic.Int64
	loads     atomic.Int64

	defaultTopN int
	prompts     *prompt.Builder
	insights    insights.Generator
	publisher   export.Publisher
	cache       *dataset.Cache
	logger      *slog.Logger
}

func NewDashboard(opts Options, logger *slog.Logger) (*Dashboard, error) {
	if opts.DefaultTopN < 1 {
		opts.DefaultTopN = models.DefaultTopN
	}
	if opts.SnapshotCacheSize < 1 {
		opts.SnapshotCacheSize = defaultSnapshotCacheSize
	}
	if opts.MaxPromptChars < 1 {
		opts.MaxPromptChars = prompt.DefaultMaxChars
	}
	if opts.Insights == nil {
		opts.Insights = insights.Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	snapshots, err := lru.New[string, models.SummarySnapshot](opts.SnapshotCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}

	d := &Dashboard{
		snapshots:   snapshots,
		defaultTopN: opts.DefaultTopN,
		prompts:     prompt.NewBuilder(opts.MaxPromptChars),
		insights:    opts.Insights,
		publisher:   opts.Publisher,
		logger:      logger,
	}
	if opts.CacheDir != "" {
		d.cache = dataset.NewCache(opts.CacheDir)
	}
	return d, nil
}

// LoadFromCSV loads path, reusing the gob cache when it is newer than the
// source. A failed load leaves the previous dataset in place.
func (d *Dashboard) LoadFromCSV(ctx context.Context, path string) error {
	if d.cache != nil {
		if cached, err := d.cache.Load(path); err == nil {
			d.install(cached, path)
			d.logger.Info("loaded from cache", "records", cached.Dataset.Len(), "source", path)
			return nil
		}
	}

	start := time.Now()
	d.logger.Info("processing CSV file", "filename", path)

	res, err := dataset.LoadFile(ctx, path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	if d.cache != nil {
		if err := d.cache.Save(path, res); err != nil {
			d.logger.Warn("failed to save cache", "error", err)
		}
	}

	d.install(res, path)
	d.logLoad(res, time.Since(start))
	return nil
}

// LoadFromReader replaces the dataset with the contents of r, typically an
// uploaded file. Uploads are never cached.
func (d *Dashboard) LoadFromReader(ctx context.Context, name string, r io.Reader) (dataset.Diagnostics, error) {
	start := time.Now()
	res, err := dataset.Load(ctx, r)
	if err != nil {
		return dataset.Diagnostics{}, err
	}
	d.install(res, name)
	d.logLoad(res, time.Since(start))
	return res.Diagnostics, nil
}

// SetDataset installs an already built dataset.
func (d *Dashboard) SetDataset(ds *models.Dataset, diag dataset.Diagnostics) {
	d.install(&dataset.Result{Dataset: ds, Diagnostics: diag}, "memory")
}

func (d *Dashboard) install(res *dataset.Result, source string) {
	d.current.Store(&session{
		data:        res.Dataset,
		index:       search.NewIndex(res.Dataset),
		diagnostics: res.Diagnostics,
		source:      source,
		loadedAt:    time.Now().UTC(),
		options:     collectOptions(res.Dataset),
		generation:  d.loads.Add(1),
	})
	d.snapshots.Purge()
}

func (d *Dashboard) logLoad(res *dataset.Result, duration time.Duration) {
	diag := res.Diagnostics
	d.logger.Info("csv processing complete",
		"records", diag.Loaded,
		"dropped", diag.Dropped,
		"warnings", len(diag.Warnings),
		"latin1", diag.Latin1,
		"duration", duration,
		"rate", fmt.Sprintf("%.0f records/sec", float64(diag.Rows)/max(duration.Seconds(), 1e-9)),
	)
}

func (d *Dashboard) session() (*session, error) {
	s := d.current.Load()
	if s == nil {
		return nil, ErrNoDataset
	}
	return s, nil
}

// DefaultTopN is the Top-N used when a request does not set one.
func (d *Dashboard) DefaultTopN() int { return d.defaultTopN }

// ParseFilter builds a validated FilterState from request parameters.
func (d *Dashboard) ParseFilter(values map[string][]string) (models.FilterState, error) {
	return filter.FromQuery(values, d.defaultTopN)
}

// View applies f to the loaded dataset.
func (d *Dashboard) View(ctx context.Context, f models.FilterState) (models.FilteredView, error) {
	s, err := d.session()
	if err != nil {
		return models.FilteredView{}, err
	}
	if err := filter.Validate(f); err != nil {
		return models.FilteredView{}, err
	}
	return d.view(ctx, s, f), nil
}

func (d *Dashboard) view(ctx context.Context, s *session, f models.FilterState) models.FilteredView {
	_, span := observability.StartSpan(ctx, "dashboard.filter")
	view := filter.Apply(s.data, f)
	span.SetTag("records.in", strconv.Itoa(s.data.Len()))
	span.SetTag("records.out", strconv.Itoa(view.Len()))
	span.Finish()
	observability.LogSpan(d.logger, span)
	return view
}

// Summary returns the snapshot for f, recomputing it on a cache miss.
// Snapshots are keyed by dataset generation and normalized filter, so
// equivalent filters share an entry and a reload never serves stale data.
func (d *Dashboard) Summary(ctx context.Context, f models.FilterState) (models.SummarySnapshot, error) {
	f = f.Normalize()
	s, err := d.session()
	if err != nil {
		return models.SummarySnapshot{}, err
	}
	if err := filter.Validate(f); err != nil {
		return models.SummarySnapshot{}, err
	}

	key := strconv.FormatInt(s.generation, 10) + "|" + f.Key()
	if snap, ok := d.snapshots.Get(key); ok {
		d.hits.Add(1)
		return snap, nil
	}
	d.misses.Add(1)

	view := d.view(ctx, s, f)

	_, span := observability.StartSpan(ctx, "dashboard.summarize")
	snap := aggregate.Summarize(view, f.TopN)
	span.SetTag("top_n", strconv.Itoa(f.TopN))
	span.SetTag("records", strconv.Itoa(snap.KPIs.Records))
	span.Finish()
	observability.LogSpan(d.logger, span)

	d.snapshots.Add(key, snap)
	return snap, nil
}

// Search finds records whose order id contains term. An empty term finds
// nothing.
func (d *Dashboard) Search(term string) ([]models.Record, error) {
	s, err := d.session()
	if err != nil {
		return nil, err
	}
	out := s.index.Find(term)
	if out == nil {
		out = []models.Record{}
	}
	return out, nil
}

// Order returns the line items of one order id.
func (d *Dashboard) Order(orderID string) ([]models.Record, error) {
	s, err := d.session()
	if err != nil {
		return nil, err
	}
	return s.index.Lookup(orderID), nil
}

// ExportCSV renders the view of f in the source column order.
func (d *Dashboard) ExportCSV(ctx context.Context, f models.FilterState) ([]byte, int, error) {
	view, err := d.View(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	body, err := export.CSV(view)
	if err != nil {
		return nil, 0, err
	}
	return body, view.Len(), nil
}

// PublishExport uploads the view of f to object storage.
func (d *Dashboard) PublishExport(ctx context.Context, f models.FilterState) (export.Published, error) {
	if d.publisher == nil {
		return export.Published{}, export.ErrNotConfigured
	}
	body, records, err := d.ExportCSV(ctx, f)
	if err != nil {
		return export.Published{}, err
	}
	published, err := d.publisher.Publish(ctx, export.FileName(time.Now()), body)
	if err != nil {
		return export.Published{}, err
	}
	published.Records = records
	d.logger.Info("export published", "key", published.Key, "records", records, "bytes", published.Size)
	return published, nil
}

// Prompt renders the insights prompt for f.
func (d *Dashboard) Prompt(ctx context.Context, f models.FilterState) (string, error) {
	f = f.Normalize()
	snap, err := d.Summary(ctx, f)
	if err != nil {
		return "", err
	}
	return d.prompts.Build(snap, f), nil
}

type Insight struct {
	Text        string    `json:"insights"`
	PromptChars int       `json:"prompt_chars"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Insights asks the generator for a report on the view of f. Generator
// failures come back as *insights.AiError; the snapshot is unaffected.
func (d *Dashboard) Insights(ctx context.Context, f models.FilterState) (Insight, error) {
	p, err := d.Prompt(ctx, f)
	if err != nil {
		return Insight{}, err
	}

	ctx, span := observability.StartSpan(ctx, "insights.generate")
	span.SetTag("prompt_chars", strconv.Itoa(len([]rune(p))))

	text, err := d.insights.Generate(ctx, p)
	if err != nil {
		span.SetError(err)
	}
	span.Finish()
	observability.LogSpan(d.logger, span)
	if err != nil {
		return Insight{}, err
	}
	return Insight{
		Text:        text,
		PromptChars: len([]rune(p)),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func (d *Dashboard) Diagnostics() (dataset.Diagnostics, error) {
	s, err := d.session()
	if err != nil {
		return dataset.Diagnostics{}, err
	}
	return s.diagnostics, nil
}

// FilterOptions lists the distinct values a filter can select.
type FilterOptions struct {
	Categories  []string  `json:"categories"`
	Sizes       []string  `json:"sizes"`
	States      []string  `json:"states"`
	Cities      []string  `json:"cities"`
	Fulfillment []string  `json:"fulfillment"`
	MinDate     time.Time `json:"min_date"`
	MaxDate     time.Time `json:"max_date"`
}

func (d *Dashboard) FilterOptions() (FilterOptions, error) {
	s, err := d.session()
	if err != nil {
		return FilterOptions{}, err
	}
	return s.options, nil
}

func collectOptions(ds *models.Dataset) FilterOptions {
	var (
		categories, sizes, states, cities, fulfillment []string
		opts                                           FilterOptions
	)
	for i := 0; i < ds.Len(); i++ {
		rec := ds.At(i)
		categories = append(categories, rec.Category)
		sizes = append(sizes, rec.Size)
		states = append(states, rec.State)
		cities = append(cities, rec.City)
		fulfillment = append(fulfillment, rec.FulfillmentMethod)
		if i == 0 || rec.OrderDate.Before(opts.MinDate) {
			opts.MinDate = rec.OrderDate
		}
		if i == 0 || rec.OrderDate.After(opts.MaxDate) {
			opts.MaxDate = rec.OrderDate
		}
	}
	opts.Categories = distinct(categories)
	opts.Sizes = distinct(sizes)
	opts.States = distinct(states)
	opts.Cities = distinct(cities)
	opts.Fulfillment = distinct(fulfillment)
	return opts
}

func distinct(values []string) []string {
	values = slices.DeleteFunc(values, func(v string) bool { return v == "" })
	if len(values) == 0 {
		return []string{}
	}
	slices.Sort(values)
	return slices.Compact(values)
}

// Stats is used by the admin endpoint.
func (d *Dashboard) Stats() map[string]any {
	s := d.current.Load()
	if s == nil {
		return map[string]any{"loaded": false}
	}
	return map[string]any{
		"loaded":          true,
		"source":          s.source,
		"loaded_at":       s.loadedAt,
		"record_count":    s.data.Len(),
		"dropped":         s.diagnostics.Dropped,
		"categories":      len(s.options.Categories),
		"states":          len(s.options.States),
		"snapshot_cache":  d.snapshots.Len(),
		"snapshot_hits":   d.hits.Load(),
		"snapshot_misses": d.misses.Load(),
	}
}
