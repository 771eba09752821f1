// Package patterns holds the masking rules used to group request paths
// into templates.
package patterns

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Pattern is a single masking rule as written in the patterns file.
type Pattern struct {
	Name        string `yaml:"name"`
	Regex       string `yaml:"regex"`
	Placeholder string `yaml:"placeholder"`
	Description string `yaml:"description"`
}

// PatternsConfig represents the patterns configuration file
type PatternsConfig struct {
	Patterns []Pattern `yaml:"patterns"`
}

// CompiledPattern is a pattern with compiled regex
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Placeholder string
	Description string
}

// LoadPatterns loads patterns from a YAML file
func LoadPatterns(path string) ([]CompiledPattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading patterns file: %w", err)
	}

	var config PatternsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing patterns YAML: %w", err)
	}

	return Compile(config.Patterns)
}

// Compile compiles patterns in order.
func Compile(pats []Pattern) ([]CompiledPattern, error) {
	compiled := make([]CompiledPattern, 0, len(pats))
	for _, p := range pats {
		if p.Name == "" {
			return nil, fmt.Errorf("pattern with regex %q has no name", p.Regex)
		}
		regex, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %s: %w", p.Name, err)
		}

		compiled = append(compiled, CompiledPattern{
			Name:        p.Name,
			Regex:       regex,
			Placeholder: p.Placeholder,
			Description: p.Description,
		})
	}

	return compiled, nil
}

// Apply runs every pattern over s in order.
func Apply(pats []CompiledPattern, s string) string {
	for _, p := range pats {
		s = p.Regex.ReplaceAllString(s, p.Placeholder)
	}
	return s
}

// DefaultPatterns returns the built-in path patterns. They match whole
// path segments only, so lesson names such as "java-ii" are left alone.
func DefaultPatterns() []CompiledPattern {
	return []CompiledPattern{
		{
			Name:        "uuid",
			Regex:       regexp.MustCompile(`(^|/)[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}(/|$)`),
			Placeholder: "${1}<UUID>${2}",
			Description: "Standard UUID segments",
		},
		{
			Name:        "hex",
			Regex:       regexp.MustCompile(`(^|/)[0-9a-f]{16,}(/|$)`),
			Placeholder: "${1}<HEX>${2}",
			Description: "Long hexadecimal segments such as commit ids",
		},
		{
			Name:        "number",
			Regex:       regexp.MustCompile(`(^|/)\d+(/|$)`),
			Placeholder: "${1}<NUM>${2}",
			Description: "Purely numeric segments",
		},
		{
			Name:        "asset",
			Regex:       regexp.MustCompile(`(^|/)[^/]+\.(?i:png|gif|css|js|ico|woff2?|ttf|map)$`),
			Placeholder: "${1}<ASSET>",
			Description: "Static assets in the last segment",
		},
	}
}
