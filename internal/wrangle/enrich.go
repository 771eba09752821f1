package wrangle

import (
	"fmt"
	"strings"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

// Enrich derives the calendar columns of both tables, drops the columns
// not needed for analysis and joins the path segment columns. Segments are
// split once from the raw table and joined to both tables by row id. The
// raw table loses its path column; the variant keeps it.
func Enrich(raw, variant *frame.Table, cfg Config) (*frame.Table, *frame.Table, error) {
	for _, t := range []*frame.Table{raw, variant} {
		if !t.Indexed() {
			return nil, nil, fmt.Errorf("field enricher: table is not indexed by %s", models.ColTimestamp)
		}
		if err := models.CheckColumns(t, "field enricher", models.ColPath); err != nil {
			return nil, nil, err
		}
	}

	segments, err := SplitPaths(raw, cfg)
	if err != nil {
		return nil, nil, err
	}

	rawOut, err := addCalendar(raw)
	if err != nil {
		return nil, nil, err
	}
	rawOut, err = rawOut.Drop(cfg.DropColumns...).Drop(models.ColPath).JoinByRowID(segments)
	if err != nil {
		return nil, nil, fmt.Errorf("joining raw path segments: %w", err)
	}

	variantOut, err := addCalendar(variant)
	if err != nil {
		return nil, nil, err
	}
	variantOut, err = variantOut.Drop(cfg.DropColumns...).JoinByRowID(segments)
	if err != nil {
		return nil, nil, fmt.Errorf("joining variant path segments: %w", err)
	}

	return rawOut, variantOut, nil
}

// addCalendar adds hour, weekday and month derived from the time index.
func addCalendar(t *frame.Table) (*frame.Table, error) {
	n := t.Len()
	hours := make([]frame.Value, n)
	weekdays := make([]frame.Value, n)
	months := make([]frame.Value, n)
	for row := 0; row < n; row++ {
		ts := t.IndexAt(row)
		hours[row] = frame.Int(int64(ts.Hour()))
		weekdays[row] = frame.String(ts.Weekday().String())
		months[row] = frame.String(ts.Month().String())
	}

	out := t
	for _, col := range []frame.Column{
		{Name: models.ColHour, Kind: frame.KindInt, Values: hours},
		{Name: models.ColWeekday, Kind: frame.KindString, Values: weekdays},
		{Name: models.ColMonth, Kind: frame.KindString, Values: months},
	} {
		var err error
		if out, err = out.WithColumn(col); err != nil {
			return nil, fmt.Errorf("adding %s: %w", col.Name, err)
		}
	}
	return out, nil
}

// SplitPaths splits the path column of t on "/" into cfg.PathSegments
// positional columns. Missing trailing segments and null paths yield nulls.
// Longer paths are truncated unless cfg.StrictSegments is set. The result
// carries the row ids of t.
func SplitPaths(t *frame.Table, cfg Config) (*frame.Table, error) {
	col, ok := t.Column(models.ColPath)
	if !ok {
		return nil, &models.SchemaError{Column: models.ColPath, Op: "path split"}
	}

	names := cfg.SegmentColumns()
	columns := make([]frame.Column, len(names))
	for i, name := range names {
		columns[i] = frame.Column{Name: name, Kind: frame.KindString, Values: make([]frame.Value, t.Len())}
	}

	for row, v := range col.Values {
		var parts []string
		if path, ok := v.Str(); ok {
			parts = strings.Split(path, "/")
		}
		if len(parts) > len(names) {
			if cfg.StrictSegments {
				return nil, &models.SchemaError{
					Column: models.ColPath,
					Op:     "path split",
					Detail: fmt.Sprintf("row %d has %d segments, limit is %d", t.RowID(row), len(parts), len(names)),
				}
			}
			parts = parts[:len(names)]
		}
		for i := range columns {
			if i < len(parts) {
				columns[i].Values[row] = frame.String(parts[i])
			} else {
				columns[i].Values[row] = frame.Null(frame.KindString)
			}
		}
	}

	segments, err := frame.New(columns...)
	if err != nil {
		return nil, fmt.Errorf("building path segments: %w", err)
	}
	return segments.WithRowIDs(t.RowIDs())
}
