package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fidde/curriculum_log_wrangler/internal/storage/clickhouse"
	"github.com/fidde/curriculum_log_wrangler/internal/storage/memory"
	"github.com/fidde/curriculum_log_wrangler/internal/storage/sqlite"
)

// Supported backends.
const (
	BackendMemory     = "memory"
	BackendSQLite     = "sqlite"
	BackendClickHouse = "clickhouse"
)

// Config holds storage configuration.
type Config struct {
	// Backend selects the storage backend: "memory", "sqlite" or "clickhouse"
	Backend string `yaml:"backend"`

	// Secondary, when set, names a backend that receives a copy of every
	// write. Reads are served from Backend.
	Secondary string `yaml:"secondary"`

	SQLite     SQLiteConfig     `yaml:"sqlite" envconfig:"SQLITE"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse" envconfig:"CLICKHOUSE"`
}

// SQLiteConfig holds SQLite-specific config.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// ClickHouseConfig holds ClickHouse-specific config.
type ClickHouseConfig struct {
	Addr      string `yaml:"addr"`
	Database  string `yaml:"database"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	BatchSize int    `yaml:"batch_size" split_words:"true"`
}

// DefaultConfig returns default storage configuration.
func DefaultConfig() Config {
	return Config{
		Backend: BackendMemory,
		SQLite:  SQLiteConfig{Path: "wrangler.db"},
		ClickHouse: ClickHouseConfig{
			Addr:      "localhost:9000",
			Database:  "default",
			User:      "default",
			BatchSize: 5000,
		},
	}
}

// Validate checks the backend names.
func (c Config) Validate() error {
	if err := validBackend(c.Backend); err != nil {
		return err
	}
	if c.Secondary == "" {
		return nil
	}
	if err := validBackend(c.Secondary); err != nil {
		return fmt.Errorf("secondary: %w", err)
	}
	if c.Secondary == c.Backend {
		return fmt.Errorf("secondary backend must differ from primary (%s)", c.Backend)
	}
	return nil
}

func validBackend(name string) error {
	switch name {
	case BackendMemory, BackendSQLite, BackendClickHouse:
		return nil
	default:
		return fmt.Errorf("unknown storage backend: %s (supported: memory, sqlite, clickhouse)", name)
	}
}

// NewStorage creates the storage implementation named by backend.
func NewStorage(ctx context.Context, backend string, cfg Config, logger *slog.Logger) (Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch backend {
	case BackendMemory:
		logger.Info("using in-memory storage")
		return memory.New(), nil

	case BackendSQLite:
		logger.Info("using SQLite storage", "path", cfg.SQLite.Path)
		store, err := sqlite.New(sqlite.DefaultConfig(cfg.SQLite.Path))
		if err != nil {
			return nil, fmt.Errorf("creating SQLite store: %w", err)
		}
		return store, nil

	case BackendClickHouse:
		ch := cfg.ClickHouse
		logger.Info("using ClickHouse storage", "addr", ch.Addr)

		chCfg := clickhouse.DefaultConfig()
		chCfg.Addr = ch.Addr
		if ch.Database != "" {
			chCfg.Database = ch.Database
		}
		if ch.User != "" {
			chCfg.Username = ch.User
		}
		chCfg.Password = ch.Password
		if ch.BatchSize > 0 {
			chCfg.BatchSize = ch.BatchSize
		}

		store, err := clickhouse.NewStore(ctx, chCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("creating ClickHouse store: %w", err)
		}
		return store, nil

	default:
		return nil, validBackend(backend)
	}
}
