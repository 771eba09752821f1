package analyzer

import (
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"github.com/fidde/curriculum_log_wrangler/internal/patterns"
	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

// PathTemplate is a group of request paths that mask to the same text.
type PathTemplate struct {
	Template    string  `json:"template"`
	Hash        uint64  `json:"hash"`
	Count       int64   `json:"count"`
	Percentage  float64 `json:"percentage"`
	ExamplePath string  `json:"example_path"`
}

// PathAnalyzer groups request paths into templates.
type PathAnalyzer struct {
	mu        sync.RWMutex
	templates map[uint64]*PathTemplate
	total     int64

	patterns []patterns.CompiledPattern
}

// NewPathAnalyzer creates an analyzer using pats, or the default patterns
// when pats is nil.
func NewPathAnalyzer(pats []patterns.CompiledPattern) *PathAnalyzer {
	if pats == nil {
		pats = patterns.DefaultPatterns()
	}

	return &PathAnalyzer{
		templates: make(map[uint64]*PathTemplate),
		patterns:  pats,
	}
}

// ExtractTemplate masks the variable segments of path.
func (a *PathAnalyzer) ExtractTemplate(path string) string {
	return patterns.Apply(a.patterns, strings.Trim(path, "/"))
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// AddPath records one request for path. Empty paths are ignored.
func (a *PathAnalyzer) AddPath(path string) {
	if path == "" {
		return
	}

	template := a.ExtractTemplate(path)
	hash := hashString(template)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++

	if existing, ok := a.templates[hash]; ok {
		existing.Count++
		return
	}
	a.templates[hash] = &PathTemplate{
		Template:    template,
		Hash:        hash,
		Count:       1,
		ExamplePath: path,
	}
}

// AddView records every path of t. Views without a path column are read
// from their path segment columns.
func (a *PathAnalyzer) AddView(t *frame.Table) {
	if t.Has(models.ColPath) {
		for row := 0; row < t.Len(); row++ {
			if p, ok := t.Value(row, models.ColPath).Str(); ok {
				a.AddPath(p)
			}
		}
		return
	}

	var segments []string
	for n := 1; t.Has(models.SegmentColumn(n)); n++ {
		segments = append(segments, models.SegmentColumn(n))
	}
	parts := make([]string, 0, len(segments))
	for row := 0; row < t.Len(); row++ {
		parts = parts[:0]
		for _, col := range segments {
			if s, ok := t.Value(row, col).Str(); ok {
				parts = append(parts, s)
			}
		}
		a.AddPath(strings.Join(parts, "/"))
	}
}

// Templates returns all templates, most frequent first.
func (a *PathAnalyzer) Templates() []PathTemplate {
	a.mu.RLock()
	defer a.mu.RUnlock()

	templates := make([]PathTemplate, 0, len(a.templates))
	for _, tmpl := range a.templates {
		out := *tmpl
		if a.total > 0 {
			out.Percentage = float64(tmpl.Count) / float64(a.total) * 100
		}
		templates = append(templates, out)
	}

	sort.Slice(templates, func(i, j int) bool {
		if templates[i].Count != templates[j].Count {
			return templates[i].Count > templates[j].Count
		}
		return templates[i].Template < templates[j].Template
	})

	return templates
}

// Total is the number of paths recorded.
func (a *PathAnalyzer) Total() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.total
}
