package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

// Store implements the storage.Storage interface using ClickHouse
type Store struct {
	conn   driver.Conn
	writer *BatchWriter
	logger *slog.Logger
}

// NewStore creates a new ClickHouse storage instance
func NewStore(ctx context.Context, config *ConnectionConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config == nil {
		config = DefaultConfig()
	}

	conn, err := Connect(ctx, config, logger)
	if err != nil {
		return nil, err
	}

	if err := InitializeSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &Store{
		conn:   conn,
		writer: NewBatchWriter(conn, config.BatchSize, logger),
		logger: logger,
	}, nil
}

// StoreView replaces the view table and its metadata row.
func (s *Store) StoreView(ctx context.Context, name string, t *frame.Table) error {
	if t == nil {
		return errors.New("view cannot be nil")
	}
	if err := models.ValidateViewName(name); err != nil {
		return err
	}

	names := t.Columns()
	kinds := make([]frame.Kind, len(names))
	kindNames := make([]string, len(names))
	for i, col := range names {
		c, _ := t.Column(col)
		kinds[i] = c.Kind
		kindNames[i] = c.Kind.String()
	}

	table := tableName(name)
	if err := s.conn.Exec(ctx, "DROP TABLE IF EXISTS "+quote(table)); err != nil {
		return fmt.Errorf("dropping table %s: %w", table, err)
	}
	if err := s.conn.Exec(ctx, viewTableDDL(name, names, kinds)); err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}
	if err := s.writer.WriteView(table, t); err != nil {
		return err
	}

	err := s.writer.retryInsert(func(ctx context.Context) error {
		batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO view_meta")
		if err != nil {
			return err
		}
		err = batch.Append(name, table, t.IndexName(), names, kindNames, uint64(t.Len()), time.Now().UTC())
		if err != nil {
			return err
		}
		return batch.Send()
	})
	if err != nil {
		return fmt.Errorf("storing metadata for %s: %w", name, err)
	}

	s.logger.Debug("stored view", "view", name, "rows", t.Len())
	return nil
}

func scanTarget(kind frame.Kind) any {
	switch kind {
	case frame.KindInt:
		return new(*int64)
	case frame.KindTime:
		return new(*time.Time)
	default:
		return new(*string)
	}
}

func decodeCell(kind frame.Kind, target any) frame.Value {
	switch p := target.(type) {
	case **int64:
		if *p != nil {
			return frame.Int(**p)
		}
	case **time.Time:
		if *p != nil {
			return frame.Time((**p).UTC())
		}
	case **string:
		if *p != nil {
			return frame.String(**p)
		}
	}
	return frame.Null(kind)
}

// GetView reads a view back in its stored row order.
func (s *Store) GetView(ctx context.Context, name string) (*frame.Table, error) {
	if err := models.ValidateViewName(name); err != nil {
		return nil, fmt.Errorf("view %s: %w", name, models.ErrNotFound)
	}

	var (
		indexName string
		names     []string
		kindNames []string
	)
	err := s.conn.QueryRow(ctx,
		"SELECT index_name, columns, kinds FROM view_meta FINAL WHERE name = ?", name,
	).Scan(&indexName, &names, &kindNames)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("view %s: %w", name, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying view metadata: %w", err)
	}
	if len(names) != len(kindNames) {
		return nil, fmt.Errorf("view %s: corrupt metadata", name)
	}

	kinds := make([]frame.Kind, len(kindNames))
	selects := []string{"_row_id", "_index"}
	for i, k := range kindNames {
		kind, ok := frame.ParseKind(k)
		if !ok {
			return nil, fmt.Errorf("column %s has unknown kind %q", names[i], k)
		}
		kinds[i] = kind
		selects = append(selects, quote(names[i]))
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY _position", strings.Join(selects, ", "), quote(tableName(name)))
	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying view rows: %w", err)
	}
	defer rows.Close()

	var (
		ids    []int
		index  []time.Time
		values = make([][]frame.Value, len(names))
	)
	for rows.Next() {
		var (
			rowID int64
			idx   *time.Time
		)
		targets := make([]any, len(kinds))
		dest := []any{&rowID, &idx}
		for i, kind := range kinds {
			targets[i] = scanTarget(kind)
			dest = append(dest, targets[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		ids = append(ids, int(rowID))
		if indexName != "" {
			if idx == nil {
				return nil, fmt.Errorf("view %s: null index at row %d", name, len(ids)-1)
			}
			index = append(index, idx.UTC())
		}
		for i, kind := range kinds {
			values[i] = append(values[i], decodeCell(kind, targets[i]))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	columns := make([]frame.Column, len(names))
	for i := range names {
		columns[i] = frame.Column{Name: names[i], Kind: kinds[i], Values: values[i]}
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

// DeleteView drops the view table and deletes its metadata rows.
func (s *Store) DeleteView(ctx context.Context, name string) error {
	if err := models.ValidateViewName(name); err != nil {
		return err
	}

	table := tableName(name)
	if err := s.conn.Exec(ctx, "DROP TABLE IF EXISTS "+quote(table)); err != nil {
		return fmt.Errorf("dropping table %s: %w", table, err)
	}
	if err := s.conn.Exec(ctx, "DELETE FROM view_meta WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting metadata for %s: %w", name, err)
	}
	return nil
}

// ListViews describes all stored views, sorted by name.
func (s *Store) ListViews(ctx context.Context) ([]models.ViewInfo, error) {
	rows, err := s.conn.Query(ctx, "SELECT name, index_name, columns, row_count FROM view_meta FINAL ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying views: %w", err)
	}
	defer rows.Close()

	infos := []models.ViewInfo{}
	for rows.Next() {
		var (
			info     models.ViewInfo
			rowCount uint64
		)
		if err := rows.Scan(&info.Name, &info.Index, &info.Columns, &rowCount); err != nil {
			return nil, fmt.Errorf("scanning view: %w", err)
		}
		info.Rows = int(rowCount)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Clear drops every view table and truncates the metadata.
func (s *Store) Clear(ctx context.Context) error {
	infos, err := s.ListViews(ctx)
	if err != nil {
		return err
	}

	for _, info := range infos {
		table := tableName(info.Name)
		if err := s.conn.Exec(ctx, "DROP TABLE IF EXISTS "+quote(table)); err != nil {
			return fmt.Errorf("dropping table %s: %w", table, err)
		}
	}

	if err := s.conn.Exec(ctx, "TRUNCATE TABLE view_meta"); err != nil {
		return fmt.Errorf("truncating table view_meta: %w", err)
	}
	return nil
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
