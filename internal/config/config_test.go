package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fidde/curriculum_log_wrangler/internal/source"
	"github.com/fidde/curriculum_log_wrangler/internal/storage"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wrangler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, SourceMySQL, cfg.Source.Backend)
	assert.Equal(t, source.DefaultDatabase, cfg.Source.Database)
	assert.Equal(t, source.DefaultCachePath, cfg.Source.CachePath)
	assert.Equal(t, 8, cfg.Wrangle.PathSegments)
	assert.Equal(t, storage.BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.API.Enabled)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
source:
  backend: sqlite
  sqlite:
    path: /data/logs.db
  refresh: true
wrangle:
  path_segments: 4
  noise_suffixes: [png]
storage:
  backend: sqlite
  sqlite:
    path: /data/views.db
  clickhouse:
    batch_size: 100
export:
  dir: out
  formats: [csv, xlsx]
api:
  enabled: true
  shutdown_timeout: 3s
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, SourceSQLite, cfg.Source.Backend)
	assert.True(t, cfg.Source.Refresh)
	assert.Equal(t, 4, cfg.Wrangle.PathSegments)
	assert.Equal(t, []string{"png"}, cfg.Wrangle.NoiseSuffixes)
	assert.NotEmpty(t, cfg.Wrangle.TimeLayouts, "unset keys keep their defaults")
	assert.Equal(t, "/data/logs.db", cfg.Source.SQLite.Path)
	assert.Equal(t, "/data/views.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, 100, cfg.Storage.ClickHouse.BatchSize)
	assert.Equal(t, "localhost:9000", cfg.Storage.ClickHouse.Addr)
	assert.Equal(t, []string{"csv", "xlsx"}, cfg.Export.Formats)
	assert.Equal(t, 3*time.Second, cfg.API.ShutdownTimeout)
	assert.Equal(t, "0.0.0.0:8080", cfg.API.Addr)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "source:\n  host: file-host\n")
	t.Setenv("WRANGLER_SOURCE_HOST", "env-host")
	t.Setenv("WRANGLER_WRANGLE_PATH_SEGMENTS", "6")
	t.Setenv("WRANGLER_EXPORT_DIR", "exports")
	t.Setenv("WRANGLER_EXPORT_FORMATS", "csv")
	t.Setenv("USER", "shell-user")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-host", cfg.Source.Host)
	assert.Equal(t, 6, cfg.Wrangle.PathSegments)
	assert.Equal(t, []string{"csv"}, cfg.Export.Formats)
	assert.Empty(t, cfg.Source.User, "bare USER must not be picked up")
}

func TestLoadEnvSectionKeys(t *testing.T) {
	t.Setenv("WRANGLER_SOURCE_SQLITE_PATH", "/data/logs.db")
	t.Setenv("WRANGLER_SOURCE_CACHE_PATH", "/tmp/cache.csv")
	t.Setenv("WRANGLER_STORAGE_SQLITE_PATH", "/data/views.db")
	t.Setenv("WRANGLER_STORAGE_CLICKHOUSE_ADDR", "ch:9000")
	t.Setenv("WRANGLER_STORAGE_CLICKHOUSE_BATCH_SIZE", "250")
	t.Setenv("WRANGLER_API_SHUTDOWN_TIMEOUT", "2s")
	t.Setenv("WRANGLER_WRANGLE_STRICT_SEGMENTS", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/data/logs.db", cfg.Source.SQLite.Path)
	assert.Equal(t, "/tmp/cache.csv", cfg.Source.CachePath)
	assert.Equal(t, "/data/views.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, "ch:9000", cfg.Storage.ClickHouse.Addr)
	assert.Equal(t, 250, cfg.Storage.ClickHouse.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.API.ShutdownTimeout)
	assert.True(t, cfg.Wrangle.StrictSegments)
}

func TestLoadIgnoresUnprefixedEnv(t *testing.T) {
	t.Setenv("CACHE_PATH", "/tmp/leaked.csv")
	t.Setenv("PATTERNS_FILE", "leaked.yaml")
	t.Setenv("SQLITE_PATH", "/data/logs.db")
	t.Setenv("CLICKHOUSE_ADDR", "prod:9000")
	t.Setenv("PATH_SEGMENTS", "3")
	t.Setenv("BATCH_SIZE", "7")
	t.Setenv("SHUTDOWN_TIMEOUT", "1h")
	t.Setenv("STRICT_SEGMENTS", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	defaults := Default()
	assert.Empty(t, cfg.Source.SQLite.Path)
	assert.Equal(t, defaults.Source.CachePath, cfg.Source.CachePath)
	assert.Equal(t, defaults.Storage.SQLite.Path, cfg.Storage.SQLite.Path)
	assert.Equal(t, defaults.Storage.ClickHouse.Addr, cfg.Storage.ClickHouse.Addr)
	assert.Equal(t, defaults.Storage.ClickHouse.BatchSize, cfg.Storage.ClickHouse.BatchSize)
	assert.Equal(t, defaults.Wrangle.PathSegments, cfg.Wrangle.PathSegments)
	assert.False(t, cfg.Wrangle.StrictSegments)
	assert.Equal(t, defaults.API.ShutdownTimeout, cfg.API.ShutdownTimeout)
	assert.Empty(t, cfg.API.PatternsFile)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "source: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "source:\n  backend: oracle\nlogging:\n  level: loud\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
	assert.Contains(t, err.Error(), "loud")

	_, err = Load(writeConfig(t, "source:\n  backend: sqlite\n"))
	assert.ErrorContains(t, err, "sqlite.path")

	_, err = Load(writeConfig(t, "wrangle:\n  path_segments: 0\n"))
	assert.ErrorContains(t, err, "path_segments")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "rows", 3)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"rows":3`)

	_, err = LoggingConfig{Level: "verbose"}.NewLogger(&buf)
	assert.Error(t, err)
}

func TestCredentials(t *testing.T) {
	creds := SourceConfig{User: "codeup", Password: "pw", Host: "db", Database: "curriculum_logs"}.Credentials()
	assert.Equal(t, source.Credentials{User: "codeup", Password: "pw", Host: "db", Database: "curriculum_logs"}, creds)
}
