package wrangle

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
)

// Stage names, used in logs, errors and metrics.
const (
	StageFilter   = "path_filter"
	StageTemporal = "temporal_normalizer"
	StageEnrich   = "field_enricher"
)

// Stats describes one pipeline run.
type Stats struct {
	InputRows    int
	RawRows      int
	VariantRows  int
	FilteredRows int
	Stages       map[string]time.Duration
}

// Result holds both processed views and the run statistics.
type Result struct {
	Raw     *frame.Table
	Variant *frame.Table
	Stats   Stats
}

// Pipeline runs the wrangling stages in order.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// NewPipeline creates a pipeline. A nil logger uses slog.Default().
func NewPipeline(cfg Config, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid wrangle config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, logger: logger}, nil
}

// WithLogger returns a copy of p that logs to logger.
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	out := *p
	if logger != nil {
		out.logger = logger
	}
	return &out
}

// Wrangle runs the default pipeline on raw and returns the processed raw
// view and the processed variant.
func Wrangle(raw *frame.Table) (*frame.Table, *frame.Table, error) {
	p, err := NewPipeline(DefaultConfig(), nil)
	if err != nil {
		return nil, nil, err
	}
	res, err := p.Run(raw)
	if err != nil {
		return nil, nil, err
	}
	return res.Raw, res.Variant, nil
}

// Run executes path filter, temporal normalizer and field enricher. Any
// stage failure aborts the run; no partial result is returned. raw itself
// is never modified.
func (p *Pipeline) Run(raw *frame.Table) (*Result, error) {
	if raw == nil {
		return nil, fmt.Errorf("raw table cannot be nil")
	}
	stats := Stats{InputRows: raw.Len(), Stages: make(map[string]time.Duration, 3)}

	start := time.Now()
	variant, err := FilterPaths(raw, p.cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageFilter, err)
	}
	stats.Stages[StageFilter] = time.Since(start)
	stats.FilteredRows = raw.Len() - variant.Len()
	p.logger.Debug("stage complete",
		"stage", StageFilter,
		"rows", raw.Len(),
		"variant_rows", variant.Len(),
	)

	start = time.Now()
	rawT, variantT, err := NormalizeTimes(raw, variant, p.cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageTemporal, err)
	}
	stats.Stages[StageTemporal] = time.Since(start)
	p.logger.Debug("stage complete", "stage", StageTemporal)

	start = time.Now()
	rawOut, variantOut, err := Enrich(rawT, variantT, p.cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageEnrich, err)
	}
	stats.Stages[StageEnrich] = time.Since(start)
	p.logger.Debug("stage complete",
		"stage", StageEnrich,
		"raw_columns", len(rawOut.Columns()),
		"variant_columns", len(variantOut.Columns()),
	)

	stats.RawRows = rawOut.Len()
	stats.VariantRows = variantOut.Len()

	return &Result{Raw: rawOut, Variant: variantOut, Stats: stats}, nil
}
