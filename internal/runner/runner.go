// Package runner ties a record source, the wrangling pipeline, view
// storage and exports into a single run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fidde/curriculum_log_wrangler/internal/export"
	"github.com/fidde/curriculum_log_wrangler/internal/metrics"
	"github.com/fidde/curriculum_log_wrangler/internal/source"
	"github.com/fidde/curriculum_log_wrangler/internal/storage"
	"github.com/fidde/curriculum_log_wrangler/internal/wrangle"
	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

// ErrRunInProgress is returned by TryRun while another run is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// Report describes a finished run.
type Report struct {
	RunID    string        `json:"run_id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Input    int           `json:"input_rows"`
	Raw      int           `json:"raw_rows"`
	Variant  int           `json:"variant_rows"`
	Filtered int           `json:"filtered_rows"`
	Exported []string      `json:"exported,omitempty"`
}

// Runner executes runs one at a time.
type Runner struct {
	src      source.Source
	pipeline *wrangle.Pipeline
	store    storage.Storage
	exporter *export.Exporter
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu sync.Mutex // held for the duration of a run

	lastMu sync.Mutex
	last   *Report
}

// Option configures a Runner.
type Option func(*Runner)

// WithExporter exports the views after every successful run.
func WithExporter(e *export.Exporter) Option {
	return func(r *Runner) { r.exporter = e }
}

// WithMetrics records run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a runner.
func New(src source.Source, pipeline *wrangle.Pipeline, store storage.Storage, opts ...Option) *Runner {
	r := &Runner{
		src:      src,
		pipeline: pipeline,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run fetches the records, wrangles them, exports them and stores both
// views. A failed run leaves the stored views as they were.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run(ctx)
}

// TryRun is like Run but fails with ErrRunInProgress instead of waiting.
func (r *Runner) TryRun(ctx context.Context) (*Report, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()
	return r.run(ctx)
}

// Last returns the report of the last successful run, or nil.
func (r *Runner) Last() *Report {
	r.lastMu.Lock()
	defer r.lastMu.Unlock()
	if r.last == nil {
		return nil
	}
	out := *r.last
	return &out
}

func (r *Runner) run(ctx context.Context) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Started: time.Now().UTC()}
	logger := r.logger.With("run_id", report.RunID)

	res, exported, err := r.execute(ctx, logger)
	if err != nil {
		if r.metrics != nil {
			r.metrics.ObserveFailure()
		}
		logger.Error("run failed", "error", err)
		return nil, err
	}

	report.Input = res.Stats.InputRows
	report.Raw = res.Stats.RawRows
	report.Variant = res.Stats.VariantRows
	report.Filtered = res.Stats.FilteredRows
	report.Exported = exported

	report.Duration = time.Since(report.Started)
	if r.metrics != nil {
		r.metrics.ObserveRun(metrics.RunStats{
			Views: map[string]int{
				models.ViewRaw:     report.Raw,
				models.ViewVariant: report.Variant,
			},
			FilteredRows: report.Filtered,
			Stages:       res.Stats.Stages,
		})
	}

	logger.Info("run complete",
		"input_rows", report.Input,
		"raw_rows", report.Raw,
		"variant_rows", report.Variant,
		"filtered_rows", report.Filtered,
		"duration", report.Duration,
	)
	r.lastMu.Lock()
	r.last = report
	r.lastMu.Unlock()
	return report, nil
}

// execute runs every step that can fail. Views are stored last, so a
// failed fetch, pipeline or export leaves the stored views untouched.
func (r *Runner) execute(ctx context.Context, logger *slog.Logger) (*wrangle.Result, []string, error) {
	raw, err := r.src.Fetch(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching records: %w", err)
	}

	res, err := r.pipeline.WithLogger(logger).Run(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("wrangling records: %w", err)
	}

	views := []export.View{
		{Name: models.ViewRaw, Table: res.Raw},
		{Name: models.ViewVariant, Table: res.Variant},
	}

	var exported []string
	if r.exporter != nil {
		if exported, err = r.exporter.Export(views); err != nil {
			return nil, nil, fmt.Errorf("exporting views: %w", err)
		}
	}

	if err := r.storeViews(ctx, logger, views); err != nil {
		return nil, nil, err
	}
	return res, exported, nil
}

// storeViews stores every view or none of them. When a store fails, the
// views already written are put back to what they were before the run.
func (r *Runner) storeViews(ctx context.Context, logger *slog.Logger, views []export.View) error {
	previous := make([]*frame.Table, len(views))
	for i, v := range views {
		t, err := r.store.GetView(ctx, v.Name)
		switch {
		case err == nil:
			previous[i] = t
		case !errors.Is(err, models.ErrNotFound):
			return fmt.Errorf("reading %s view: %w", v.Name, err)
		}
	}

	for i, v := range views {
		if err := r.store.StoreView(ctx, v.Name, v.Table); err != nil {
			r.restore(ctx, logger, views[:i], previous[:i])
			return fmt.Errorf("storing %s view: %w", v.Name, err)
		}
	}
	return nil
}

func (r *Runner) restore(ctx context.Context, logger *slog.Logger, views []export.View, previous []*frame.Table) {
	ctx = context.WithoutCancel(ctx)
	for i, v := range views {
		var err error
		if previous[i] != nil {
			err = r.store.StoreView(ctx, v.Name, previous[i])
		} else {
			err = r.store.DeleteView(ctx, v.Name)
		}
		if err != nil {
			logger.Error("restoring view", "view", v.Name, "error", err)
		}
	}
}
