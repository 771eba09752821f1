package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

// DefaultCachePath is the snapshot location used when none is configured.
const DefaultCachePath = "cohort_sql.csv"

// Cached reuses a snapshot of a previous fetch when one exists and
// otherwise fetches from the wrapped source and writes the snapshot.
// Concurrent writers are not coordinated; the last rename wins.
type Cached struct {
	inner   Source
	path    string
	refresh bool
	logger  *slog.Logger
}

// CachedOption configures a Cached source.
type CachedOption func(*Cached)

// WithRefresh ignores an existing snapshot and always fetches.
func WithRefresh(refresh bool) CachedOption {
	return func(c *Cached) { c.refresh = refresh }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CachedOption {
	return func(c *Cached) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCached wraps inner with a snapshot stored at path.
func NewCached(inner Source, path string, opts ...CachedOption) *Cached {
	if path == "" {
		path = DefaultCachePath
	}
	c := &Cached{inner: inner, path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the snapshot if present, or fetches and snapshots.
func (c *Cached) Fetch(ctx context.Context) (*frame.Table, error) {
	if !c.refresh {
		t, err := ReadSnapshot(c.path)
		switch {
		case err == nil:
			if err := models.CheckColumns(t, "record source", models.RequiredColumns...); err != nil {
				return nil, err
			}
			c.logger.Info("loaded log records from snapshot", "path", c.path, "rows", t.Len())
			return t, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}

	t, err := c.inner.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching records: %w", err)
	}
	if err := WriteSnapshot(c.path, t); err != nil {
		return nil, err
	}
	c.logger.Info("wrote snapshot", "path", c.path, "rows", t.Len())
	return t, nil
}
