package source

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// NewSQLite opens a source backed by a SQLite database holding the logs
// and cohorts tables.
func NewSQLite(path string, logger *slog.Logger) (*SQLSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragma: %w", err)
	}
	return newSQLSource(db, logger), nil
}
