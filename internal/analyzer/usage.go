// Package analyzer computes usage aggregations over processed views.
package analyzer

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

// Dimension is a calendar field a view can be bucketed by.
type Dimension string

const (
	DimensionHour    Dimension = "hour"
	DimensionWeekday Dimension = "weekday"
	DimensionMonth   Dimension = "month"
)

// ParseDimension validates a dimension name.
func ParseDimension(s string) (Dimension, error) {
	switch d := Dimension(s); d {
	case DimensionHour, DimensionWeekday, DimensionMonth:
		return d, nil
	default:
		return "", fmt.Errorf("unknown dimension %q (supported: hour, weekday, month)", s)
	}
}

// labels returns every bucket label of d in display order.
func (d Dimension) labels() []string {
	switch d {
	case DimensionHour:
		out := make([]string, 24)
		for h := range out {
			out[h] = strconv.Itoa(h)
		}
		return out
	case DimensionWeekday:
		out := make([]string, 7)
		for i := range out {
			// Monday first.
			out[i] = time.Weekday((i + 1) % 7).String()
		}
		return out
	default:
		out := make([]string, 12)
		for i := range out {
			out[i] = time.Month(i + 1).String()
		}
		return out
	}
}

// Usage counts the rows of t in each bucket of d. Every bucket is present,
// including empty ones. Null cells are not counted.
func Usage(view string, t *frame.Table, d Dimension) (*models.UsageResponse, error) {
	col := string(d)
	if err := models.CheckColumns(t, "usage", col); err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	var total int64
	for row := 0; row < t.Len(); row++ {
		v := t.Value(row, col)
		if v.IsNull() {
			continue
		}
		counts[v.Text()]++
		total++
	}

	labels := d.labels()
	resp := &models.UsageResponse{
		View:      view,
		Dimension: col,
		Total:     total,
		Buckets:   make([]models.UsageBucket, len(labels)),
	}
	for i, label := range labels {
		resp.Buckets[i] = models.UsageBucket{Label: label, Count: counts[label]}
		if total > 0 {
			resp.Buckets[i].Percentage = float64(counts[label]) / float64(total) * 100
		}
	}
	return resp, nil
}

// TopPaths returns the most requested values of the given path segment,
// most requested first and ties broken by value. Null and empty segments
// are skipped. A limit of zero or less returns every value.
func TopPaths(view string, t *frame.Table, segment, limit int) (*models.TopPathsResponse, error) {
	if segment < 1 {
		return nil, fmt.Errorf("segment must be at least 1, got %d", segment)
	}
	col := models.SegmentColumn(segment)
	if err := models.CheckColumns(t, "top paths", col); err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	users := make(map[string]map[string]struct{})
	hasUsers := t.Has(models.ColUserID)
	for row := 0; row < t.Len(); row++ {
		value, ok := t.Value(row, col).Str()
		if !ok || value == "" {
			continue
		}
		counts[value]++
		if !hasUsers {
			continue
		}
		user := t.Value(row, models.ColUserID)
		if user.IsNull() {
			continue
		}
		if users[value] == nil {
			users[value] = make(map[string]struct{})
		}
		users[value][user.Text()] = struct{}{}
	}

	paths := make([]models.PathCount, 0, len(counts))
	for value, count := range counts {
		paths = append(paths, models.PathCount{Value: value, Count: count, Users: len(users[value])})
	}
	sort.Slice(paths, func(i, j int) bool {
		if paths[i].Count != paths[j].Count {
			return paths[i].Count > paths[j].Count
		}
		return paths[i].Value < paths[j].Value
	})
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}

	return &models.TopPathsResponse{View: view, Segment: segment, Paths: paths}, nil
}

// Summarize describes a view: row count, time range, distinct users and
// cohorts, and how many rows have no path.
func Summarize(view string, t *frame.Table) *models.ViewSummary {
	summary := &models.ViewSummary{View: view, Rows: t.Len()}

	if t.Indexed() && t.Len() > 0 {
		first, last := t.IndexAt(0), t.IndexAt(t.Len()-1)
		summary.FirstSeen = &first
		summary.LastSeen = &last
	}

	summary.DistinctUsers = distinct(t, models.ColUserID)
	summary.Cohorts = distinct(t, models.ColCohortID)

	if t.Has(models.ColPath) {
		for row := 0; row < t.Len(); row++ {
			if t.Value(row, models.ColPath).IsNull() {
				summary.NullPaths++
			}
		}
	}
	return summary
}

func distinct(t *frame.Table, col string) int {
	if !t.Has(col) {
		return 0
	}
	seen := make(map[string]struct{})
	for row := 0; row < t.Len(); row++ {
		v := t.Value(row, col)
		if !v.IsNull() {
			seen[v.Text()] = struct{}{}
		}
	}
	return len(seen)
}
