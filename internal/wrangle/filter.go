package wrangle

import (
	"strings"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

// IsNoise reports whether a request path is an image asset or a known
// noise path. Suffix and equality checks are case-sensitive.
func (c Config) IsNoise(path string) bool {
	for _, suffix := range c.NoiseSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	for _, p := range c.NoisePaths {
		if path == p {
			return true
		}
	}
	return false
}

// FilterPaths returns a new table holding the rows of raw whose path is not
// noise. Rows with a null path are kept.
func FilterPaths(raw *frame.Table, cfg Config) (*frame.Table, error) {
	if err := models.CheckColumns(raw, "path filter", models.ColPath); err != nil {
		return nil, err
	}
	col, _ := raw.Column(models.ColPath)
	if col.Kind != frame.KindString {
		return nil, &models.SchemaError{Column: models.ColPath, Op: "path filter", Detail: "expected text values, got " + col.Kind.String()}
	}

	return raw.Filter(func(row int) bool {
		path, ok := col.Values[row].Str()
		if !ok {
			return true
		}
		return !cfg.IsNoise(path)
	}), nil
}
