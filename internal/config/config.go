// Package config loads the wrangler configuration from defaults, an
// optional YAML file and WRANGLER_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/fidde/curriculum_log_wrangler/internal/export"
	"github.com/fidde/curriculum_log_wrangler/internal/source"
	"github.com/fidde/curriculum_log_wrangler/internal/storage"
	"github.com/fidde/curriculum_log_wrangler/internal/wrangle"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "WRANGLER"

// Source backends.
const (
	SourceMySQL  = "mysql"
	SourceSQLite = "sqlite"
)

// Config is the complete application configuration.
type Config struct {
	Source  SourceConfig   `yaml:"source" envconfig:"SOURCE"`
	Wrangle wrangle.Config `yaml:"wrangle" envconfig:"WRANGLE"`
	Storage storage.Config `yaml:"storage" envconfig:"STORAGE"`
	Export  export.Config  `yaml:"export" envconfig:"EXPORT"`
	API     APIConfig      `yaml:"api" envconfig:"API"`
	Logging LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
}

// Leaf fields never carry an envconfig tag: envconfig also looks a tagged
// field up under its bare tag name, so USER or SQLITE_PATH from the shell
// would leak in. Multi-word fields use split_words instead, and struct tags
// only name the prefix of their section.

// SourceConfig selects where log records are read from.
type SourceConfig struct {
	Backend    string             `yaml:"backend"`
	User       string             `yaml:"user"`
	Password   string             `yaml:"password"`
	Host       string             `yaml:"host"`
	Database   string             `yaml:"database"`
	SQLite     SQLiteSourceConfig `yaml:"sqlite" envconfig:"SQLITE"`
	CachePath  string             `yaml:"cache_path" split_words:"true"`
	Refresh    bool               `yaml:"refresh"`
}

// SQLiteSourceConfig locates a SQLite copy of the log database.
type SQLiteSourceConfig struct {
	Path string `yaml:"path"`
}

// Credentials returns the database credentials of the source.
func (s SourceConfig) Credentials() source.Credentials {
	return source.Credentials{
		User:     s.User,
		Password: s.Password,
		Host:     s.Host,
		Database: s.Database,
	}
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	PatternsFile    string        `yaml:"patterns_file" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Backend:   SourceMySQL,
			Database:  source.DefaultDatabase,
			CachePath: source.DefaultCachePath,
		},
		Wrangle: wrangle.DefaultConfig(),
		Storage: storage.DefaultConfig(),
		API: APIConfig{
			Addr:            "0.0.0.0:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error

	switch c.Source.Backend {
	case SourceMySQL:
	case SourceSQLite:
		if c.Source.SQLite.Path == "" {
			errs = append(errs, errors.New("source: sqlite.path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("source: unknown backend %q (supported: mysql, sqlite)", c.Source.Backend))
	}

	if err := c.Wrangle.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("wrangle: %w", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if err := c.Export.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("export: %w", err))
	}
	if c.API.Enabled && c.API.Addr == "" {
		errs = append(errs, errors.New("api: addr is required when the API is enabled"))
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if f := strings.ToLower(c.Logging.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("logging: unknown format %q (supported: text, json)", c.Logging.Format))
	}

	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("unknown level %q", s)
	}
	return level, nil
}

// NewLogger builds the logger described by the logging section.
func (c LoggingConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(c.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
