// Package wrangle turns a raw table of curriculum log records into the two
// analysis views: the raw view and the filtered variant.
package wrangle

import (
	"errors"
	"fmt"

	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

// Config controls the pipeline stages.
type Config struct {
	// NoiseSuffixes are path suffixes (image assets) excluded from the variant.
	NoiseSuffixes []string `yaml:"noise_suffixes" split_words:"true"`

	// NoisePaths are exact paths excluded from the variant.
	NoisePaths []string `yaml:"noise_paths" split_words:"true"`

	// PathSegments is the number of path_N columns produced by the enricher.
	PathSegments int `yaml:"path_segments" split_words:"true"`

	// StrictSegments makes paths with more than PathSegments segments an
	// error instead of truncating them.
	StrictSegments bool `yaml:"strict_segments" split_words:"true"`

	// DateColumns are parsed from text into time values in place.
	DateColumns []string `yaml:"date_columns" split_words:"true"`

	// DropColumns are removed from both views by the enricher.
	DropColumns []string `yaml:"drop_columns" split_words:"true"`

	// TimeLayouts are the accepted date/time layouts, tried in order.
	TimeLayouts []string `yaml:"time_layouts" split_words:"true"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		NoiseSuffixes: []string{"jpg", "jpeg", "svg"},
		NoisePaths:    []string{"/", "search/search_index.json"},
		PathSegments:  8,
		DateColumns: []string{
			models.ColStartDate,
			models.ColEndDate,
			models.ColCreatedAt,
			models.ColUpdatedAt,
		},
		DropColumns: []string{models.ColRowIndex, models.ColID, models.ColDeletedAt},
		TimeLayouts: []string{
			"2006-01-02 15:04:05",
			"2006-01-02 15:04:05.999999999",
			"2006-01-02T15:04:05Z07:00",
			"2006-01-02T15:04:05",
			"2006-01-02 15:04",
			"2006-01-02",
			"2006-1-2 15:4:5",
			"2006-1-2",
		},
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c Config) Validate() error {
	if c.PathSegments < 1 {
		return fmt.Errorf("path_segments must be positive, got %d", c.PathSegments)
	}
	if len(c.TimeLayouts) == 0 {
		return errors.New("time_layouts must not be empty")
	}
	for _, s := range c.NoiseSuffixes {
		if s == "" {
			return errors.New("noise_suffixes must not contain empty strings")
		}
	}
	return nil
}

// SegmentColumns returns the names of the path segment columns.
func (c Config) SegmentColumns() []string {
	names := make([]string, c.PathSegments)
	for i := range names {
		names[i] = models.SegmentColumn(i + 1)
	}
	return names
}
