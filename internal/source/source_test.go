package source

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fidde/curriculum_log_wrangler/internal/wrangle"
	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

// setupTestDB creates a SQLite database with the logs and cohorts tables.
func setupTestDB(t *testing.T) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "curriculum_logs.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`CREATE TABLE logs (
			date TEXT, time TEXT, path TEXT,
			user_id INTEGER, cohort_id INTEGER, ip TEXT
		)`,
		`CREATE TABLE cohorts (
			id INTEGER PRIMARY KEY, name TEXT, slack TEXT,
			start_date TEXT, end_date TEXT, created_at TEXT, updated_at TEXT,
			deleted_at TEXT, program_id INTEGER
		)`,
		`INSERT INTO cohorts VALUES
			(22, 'Teddy', '#teddy', '2018-01-08', '2018-05-17', '2018-01-08 13:59:10', '2018-01-08 13:59:10', NULL, 2)`,
		`INSERT INTO logs VALUES
			('2018-01-26', '09:55:03', '/', 1, 22, '97.105.19.61'),
			('2018-01-26', '09:56:02', 'java-ii', 1, 22, '97.105.19.61'),
			('2018-01-26', '09:56:05', NULL, 2, NULL, '97.105.19.61')`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return dbPath
}

func TestSQLiteFetch(t *testing.T) {
	src, err := NewSQLite(setupTestDB(t), nil)
	require.NoError(t, err)
	defer src.Close()

	tbl, err := src.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, models.LogRecordColumns, tbl.Columns())

	v, ok := tbl.Value(1, models.ColPath).Str()
	require.True(t, ok)
	assert.Equal(t, "java-ii", v)

	v, ok = tbl.Value(0, models.ColUserID).Str()
	require.True(t, ok)
	assert.Equal(t, "1", v)

	v, ok = tbl.Value(2, models.ColRowIndex).Str()
	require.True(t, ok)
	assert.Equal(t, "2", v)

	assert.True(t, tbl.Value(2, models.ColPath).IsNull())
	assert.True(t, tbl.Value(2, models.ColStartDate).IsNull(), "log without cohort has null cohort columns")
}

// setupTypedTestDB declares the date and time columns with the types the
// MySQL schema uses, which the SQLite driver parses into time values.
func setupTypedTestDB(t *testing.T) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "curriculum_logs_typed.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`CREATE TABLE logs (
			date DATE, time TIME, path VARCHAR(255),
			user_id INT, cohort_id INT, ip VARCHAR(15)
		)`,
		`CREATE TABLE cohorts (
			id INT PRIMARY KEY, name VARCHAR(255), slack VARCHAR(255),
			start_date DATE, end_date DATE, created_at DATETIME, updated_at TIMESTAMP,
			deleted_at DATETIME, program_id INT
		)`,
		`INSERT INTO cohorts VALUES
			(22, 'Teddy', '#teddy', '2018-01-08', '2018-05-17', '2018-01-08 13:59:10', '2018-01-08 13:59:10', NULL, 2)`,
		`INSERT INTO logs VALUES
			('2018-01-26', '09:55:03', '/', 1, 22, '97.105.19.61'),
			('2018-01-26', '09:56:02', 'java-ii/arrays', 1, 22, '97.105.19.61'),
			('2018-01-29', '14:01:00', NULL, 2, NULL, '97.105.19.61')`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return dbPath
}

func TestSQLiteFetchTypedColumns(t *testing.T) {
	src, err := NewSQLite(setupTypedTestDB(t), nil)
	require.NoError(t, err)
	defer src.Close()

	tbl, err := src.Fetch(context.Background())
	require.NoError(t, err)

	tests := []struct {
		column string
		want   string
	}{
		{models.ColDate, "2018-01-26"},
		{models.ColTime, "09:55:03"},
		{models.ColStartDate, "2018-01-08"},
		{models.ColCreatedAt, "2018-01-08 13:59:10"},
		{models.ColUpdatedAt, "2018-01-08 13:59:10"},
		{models.ColUserID, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			v, ok := tbl.Value(0, tt.column).Str()
			require.True(t, ok)
			assert.Equal(t, tt.want, v)
		})
	}
	assert.True(t, tbl.Value(0, models.ColDeletedAt).IsNull())
	assert.True(t, tbl.Value(2, models.ColCreatedAt).IsNull())

	raw, variant, err := wrangle.Wrangle(tbl)
	require.NoError(t, err)
	assert.Equal(t, 3, raw.Len())
	assert.Equal(t, 2, variant.Len())
	assert.Equal(t, time.Date(2018, 1, 26, 9, 55, 3, 0, time.UTC), raw.IndexAt(0))
}

func TestCellText(t *testing.T) {
	ts := time.Date(2018, 1, 26, 9, 55, 3, 0, time.UTC)

	tests := []struct {
		name     string
		value    any
		declared string
		want     string
		null     bool
	}{
		{"null", nil, "TEXT", "", true},
		{"bytes", []byte("java-ii"), "VARCHAR", "java-ii", false},
		{"int", int64(22), "INT", "22", false},
		{"float", 1.5, "REAL", "1.5", false},
		{"date", time.Date(2018, 1, 26, 0, 0, 0, 0, time.UTC), "DATE", "2018-01-26", false},
		{"datetime", ts, "DATETIME", "2018-01-26 09:55:03", false},
		{"timestamp fraction", ts.Add(250 * time.Millisecond), "TIMESTAMP", "2018-01-26 09:55:03.25", false},
		{"time", ts, "TIME", "09:55:03", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := cellText(tt.value, tt.declared)
			require.NoError(t, err)
			assert.Equal(t, !tt.null, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, _, err := cellText(struct{}{}, "TEXT")
	assert.Error(t, err)
}

func TestSQLiteFetchMissingColumns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bad.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE logs (date TEXT, time TEXT, cohort_id INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE cohorts (id INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	src, err := NewSQLite(dbPath, nil)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Fetch(context.Background())

	var schemaErr *models.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, models.ColPath, schemaErr.Column)
}

func TestMySQLConfig(t *testing.T) {
	cfg := MySQLConfig(Credentials{User: "codeup", Password: "secret", Host: "db.example.com"})

	assert.Equal(t, "db.example.com:3306", cfg.Addr)
	assert.Equal(t, DefaultDatabase, cfg.DBName)
	assert.Equal(t, "tcp", cfg.Net)
	assert.False(t, cfg.ParseTime)
	assert.Contains(t, cfg.FormatDSN(), "codeup:secret@tcp(db.example.com:3306)/curriculum_logs")

	cfg = MySQLConfig(Credentials{Host: "127.0.0.1:3307", Database: "other"})
	assert.Equal(t, "127.0.0.1:3307", cfg.Addr)
	assert.Equal(t, "other", cfg.DBName)

	_, err := NewMySQL(Credentials{}, nil)
	assert.Error(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	src, err := NewSQLite(setupTestDB(t), nil)
	require.NoError(t, err)
	defer src.Close()
	fetched, err := src.Fetch(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cache", "cohort_sql.csv")
	require.NoError(t, WriteSnapshot(path, fetched))

	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.True(t, fetched.Equal(loaded))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), ",date,time,path,")
}

func TestReadSnapshotUnnamedIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cohort_sql.csv")
	content := ",date,time,path,start_date,end_date,created_at,updated_at\n" +
		"0,2018-01-26,09:55:03,/,2018-01-08,2018-05-17,2018-01-08 13:59:10,2018-01-08 13:59:10\n" +
		"1,2018-01-26,09:56:02,,,,,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tbl, err := ReadSnapshot(path)
	require.NoError(t, err)

	assert.Equal(t, models.ColRowIndex, tbl.Columns()[0])
	assert.Equal(t, 2, tbl.Len())
	assert.True(t, tbl.Value(1, models.ColPath).IsNull())
}

func TestReadSnapshotMissing(t *testing.T) {
	_, err := ReadSnapshot(filepath.Join(t.TempDir(), "absent.csv"))

	var cacheErr *CacheIOError
	require.ErrorAs(t, err, &cacheErr)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

type countingSource struct {
	calls int
	table *frame.Table
	err   error
}

func (s *countingSource) Fetch(ctx context.Context) (*frame.Table, error) {
	s.calls++
	return s.table, s.err
}

func TestCachedFetch(t *testing.T) {
	sqlSrc, err := NewSQLite(setupTestDB(t), nil)
	require.NoError(t, err)
	defer sqlSrc.Close()
	fetched, err := sqlSrc.Fetch(context.Background())
	require.NoError(t, err)

	inner := &countingSource{table: fetched}
	path := filepath.Join(t.TempDir(), "cohort_sql.csv")
	cached := NewCached(inner, path)

	first, err := cached.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.FileExists(t, path)

	second, err := cached.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "snapshot must be reused")
	assert.True(t, first.Equal(second))

	refreshing := NewCached(inner, path, WithRefresh(true))
	_, err = refreshing.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedFetchError(t *testing.T) {
	inner := &countingSource{err: errors.New("connection refused")}
	path := filepath.Join(t.TempDir(), "cohort_sql.csv")

	_, err := NewCached(inner, path).Fetch(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoFileExists(t, path)
}
