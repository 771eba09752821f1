package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
)

const (
	maxRetries    = 3
	insertTimeout = 30 * time.Second
)

// BatchWriter inserts the rows of a view in fixed size batches.
type BatchWriter struct {
	conn      driver.Conn
	batchSize int
	logger    *slog.Logger
}

// NewBatchWriter creates a writer inserting at most batchSize rows per batch.
func NewBatchWriter(conn driver.Conn, batchSize int, logger *slog.Logger) *BatchWriter {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchWriter{conn: conn, batchSize: batchSize, logger: logger}
}

// cellValue converts a value to the pointer form accepted for Nullable
// columns.
func cellValue(v frame.Value) any {
	switch v.Kind() {
	case frame.KindInt:
		if i, ok := v.Int64(); ok {
			return &i
		}
		return (*int64)(nil)
	case frame.KindTime:
		if t, ok := v.TimeValue(); ok {
			return &t
		}
		return (*time.Time)(nil)
	default:
		if s, ok := v.Str(); ok {
			return &s
		}
		return (*string)(nil)
	}
}

// WriteView inserts every row of t into table.
func (w *BatchWriter) WriteView(table string, t *frame.Table) error {
	names := t.Columns()
	for start := 0; start < t.Len(); start += w.batchSize {
		end := min(start+w.batchSize, t.Len())
		if err := w.insertRows(table, t, names, start, end); err != nil {
			return fmt.Errorf("inserting rows %d-%d into %s: %w", start, end, table, err)
		}
		w.logger.Debug("inserted batch", "table", table, "from", start, "to", end)
	}
	return nil
}

func (w *BatchWriter) insertRows(table string, t *frame.Table, names []string, start, end int) error {
	return w.retryInsert(func(ctx context.Context) error {
		batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO "+quote(table))
		if err != nil {
			return err
		}

		row := make([]any, len(names)+3)
		for r := start; r < end; r++ {
			row[0] = uint64(r)
			row[1] = int64(t.RowID(r))
			row[2] = (*time.Time)(nil)
			if t.Indexed() {
				ts := t.IndexAt(r)
				row[2] = &ts
			}
			for i, name := range names {
				row[i+3] = cellValue(t.Value(r, name))
			}
			if err := batch.Append(row...); err != nil {
				return err
			}
		}

		return batch.Send()
	})
}

// retryInsert retries insert operation with exponential backoff
func (w *BatchWriter) retryInsert(fn func(context.Context) error) error {
	var err error
	retryDelay := 100 * time.Millisecond

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		err = fn(ctx)
		cancel()

		if err == nil {
			return nil
		}

		if attempt < maxRetries {
			w.logger.Warn("insert failed, retrying", "attempt", attempt, "error", err)
			time.Sleep(retryDelay)
			retryDelay *= 2
		}
	}

	return fmt.Errorf("insert failed after %d attempts: %w", maxRetries, err)
}
