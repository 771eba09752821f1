// Package sqlite provides a SQLite-backed storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

//go:embed migrations/001_initial_schema.up.sql
var migrationSQL string

// timeFormat is how time cells and the index are stored. Text keeps the
// driver from converting the column on read.
const timeFormat = time.RFC3339Nano

// Store is a SQLite-backed storage for processed views. Each view is kept
// in its own view_<name> table, with its column layout recorded in
// view_columns.
type Store struct {
	db *sql.DB
}

// Config holds SQLite store configuration.
type Config struct {
	DBPath string
}

// DefaultConfig returns default SQLite configuration.
func DefaultConfig(dbPath string) Config {
	return Config{DBPath: dbPath}
}

// New creates a new SQLite store with the given configuration.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000", // 64MB cache
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(migrationSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func tableName(view string) string {
	return "view_" + view
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func sqlType(kind frame.Kind) string {
	if kind == frame.KindInt {
		return "INTEGER"
	}
	return "TEXT"
}

func sqlValue(v frame.Value) any {
	if t, ok := v.TimeValue(); ok {
		return t.UTC().Format(timeFormat)
	}
	return v.Interface()
}

// StoreView stores t under name inside a single transaction.
func (s *Store) StoreView(ctx context.Context, name string, t *frame.Table) error {
	if t == nil {
		return errors.New("view cannot be nil")
	}
	if err := models.ValidateViewName(name); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	table := quote(tableName(name))
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("dropping view table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM views WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting view metadata: %w", err)
	}

	names := t.Columns()
	defs := []string{"_position INTEGER PRIMARY KEY", "_row_id INTEGER NOT NULL", "_index TEXT"}
	placeholders := []string{"?", "?", "?"}
	kinds := make([]frame.Kind, len(names))
	for i, col := range names {
		c, _ := t.Column(col)
		kinds[i] = c.Kind
		defs = append(defs, quote(col)+" "+sqlType(c.Kind))
		placeholders = append(placeholders, "?")
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating view table: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO views (name, table_name, index_name, row_count, stored_at) VALUES (?, ?, ?, ?, ?)",
		name, tableName(name), t.IndexName(), t.Len(), time.Now().UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("inserting view metadata: %w", err)
	}

	for i, col := range names {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO view_columns (view_name, position, name, kind) VALUES (?, ?, ?, ?)",
			name, i, col, kinds[i].String())
		if err != nil {
			return fmt.Errorf("inserting column %s: %w", col, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, strings.Join(placeholders, ", ")))
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(placeholders))
	for row := 0; row < t.Len(); row++ {
		args[0] = row
		args[1] = t.RowID(row)
		args[2] = nil
		if t.Indexed() {
			args[2] = t.IndexAt(row).UTC().Format(timeFormat)
		}
		for i, col := range names {
			args[i+3] = sqlValue(t.Value(row, col))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("inserting row %d: %w", row, err)
		}
	}

	return tx.Commit()
}

type columnMeta struct {
	name string
	kind frame.Kind
}

func (s *Store) columns(ctx context.Context, name string) ([]columnMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, kind FROM view_columns WHERE view_name = ? ORDER BY position", name)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	defer rows.Close()

	var cols []columnMeta
	for rows.Next() {
		var col, kindName string
		if err := rows.Scan(&col, &kindName); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		kind, ok := frame.ParseKind(kindName)
		if !ok {
			return nil, fmt.Errorf("column %s has unknown kind %q", col, kindName)
		}
		cols = append(cols, columnMeta{name: col, kind: kind})
	}
	return cols, rows.Err()
}

// GetView retrieves a view by name.
func (s *Store) GetView(ctx context.Context, name string) (*frame.Table, error) {
	if err := models.ValidateViewName(name); err != nil {
		return nil, fmt.Errorf("view %s: %w", name, models.ErrNotFound)
	}

	var indexName string
	err := s.db.QueryRowContext(ctx, "SELECT index_name FROM views WHERE name = ?", name).Scan(&indexName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("view %s: %w", name, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying view: %w", err)
	}

	meta, err := s.columns(ctx, name)
	if err != nil {
		return nil, err
	}

	selects := []string{"_row_id", "_index"}
	for _, m := range meta {
		selects = append(selects, quote(m.name))
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY _position", strings.Join(selects, ", "), quote(tableName(name)))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying view rows: %w", err)
	}
	defer rows.Close()

	var (
		ids    []int
		index  []time.Time
		values = make([][]frame.Value, len(meta))
	)

	for rows.Next() {
		var (
			rowID int64
			idx   sql.NullString
			cells = make([]any, len(meta))
		)
		dest := []any{&rowID, &idx}
		for i, m := range meta {
			if m.kind == frame.KindInt {
				cells[i] = new(sql.NullInt64)
			} else {
				cells[i] = new(sql.NullString)
			}
			dest = append(dest, cells[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		ids = append(ids, int(rowID))
		if indexName != "" {
			ts, err := time.Parse(timeFormat, idx.String)
			if err != nil {
				return nil, fmt.Errorf("decoding index: %w", err)
			}
			index = append(index, ts)
		}
		for i, m := range meta {
			v, err := decodeCell(m.kind, cells[i])
			if err != nil {
				return nil, fmt.Errorf("decoding column %s: %w", m.name, err)
			}
			values[i] = append(values[i], v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	columns := make([]frame.Column, len(meta))
	for i, m := range meta {
		columns[i] = frame.Column{Name: m.name, Kind: m.kind, Values: values[i]}
	}
	t, err := frame.New(columns...)
	if err != nil {
		return nil, err
	}
	if t, err = t.WithRowIDs(ids); err != nil {
		return nil, err
	}
	if indexName != "" {
		if index == nil {
			index = []time.Time{}
		}
		return t.WithIndex(indexName, index)
	}
	return t, nil
}

func decodeCell(kind frame.Kind, cell any) (frame.Value, error) {
	switch kind {
	case frame.KindInt:
		n := cell.(*sql.NullInt64)
		if !n.Valid {
			return frame.Null(kind), nil
		}
		return frame.Int(n.Int64), nil
	case frame.KindTime:
		n := cell.(*sql.NullString)
		if !n.Valid {
			return frame.Null(kind), nil
		}
		ts, err := time.Parse(timeFormat, n.String)
		if err != nil {
			return frame.Value{}, err
		}
		return frame.Time(ts), nil
	default:
		n := cell.(*sql.NullString)
		if !n.Valid {
			return frame.Null(kind), nil
		}
		return frame.String(n.String), nil
	}
}

// DeleteView drops the view table and its metadata. Column rows go with
// the metadata through ON DELETE CASCADE.
func (s *Store) DeleteView(ctx context.Context, name string) error {
	if err := models.ValidateViewName(name); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(tableName(name))); err != nil {
		return fmt.Errorf("dropping view table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM views WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting view metadata: %w", err)
	}
	return tx.Commit()
}

// ListViews describes all stored views, sorted by name.
func (s *Store) ListViews(ctx context.Context) ([]models.ViewInfo, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, index_name, row_count FROM views ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying views: %w", err)
	}

	var infos []models.ViewInfo
	for rows.Next() {
		var info models.ViewInfo
		if err := rows.Scan(&info.Name, &info.Index, &info.Rows); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning view: %w", err)
		}
		infos = append(infos, info)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range infos {
		meta, err := s.columns(ctx, infos[i].Name)
		if err != nil {
			return nil, err
		}
		infos[i].Columns = make([]string, len(meta))
		for j, m := range meta {
			infos[i].Columns[j] = m.name
		}
	}
	if infos == nil {
		infos = []models.ViewInfo{}
	}
	return infos, nil
}

// Clear removes all views and their tables.
func (s *Store) Clear(ctx context.Context) error {
	infos, err := s.ListViews(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, info := range infos {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(tableName(info.Name))); err != nil {
			return fmt.Errorf("dropping view %s: %w", info.Name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM views"); err != nil {
		return fmt.Errorf("clearing views: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
