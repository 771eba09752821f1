// Package source loads the raw table of curriculum log records, either from
// a relational database or from a local snapshot of a previous fetch.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

// LogsQuery joins every log line with its cohort. Log lines without a
// cohort keep null cohort columns.
const LogsQuery = `
	SELECT *
	FROM logs
	LEFT JOIN cohorts
	ON (logs.cohort_id = cohorts.id)
`

// Source supplies the raw log table.
type Source interface {
	// Fetch returns the full raw table.
	Fetch(ctx context.Context) (*frame.Table, error)
}

// Credentials are the connection parameters of the log database.
type Credentials struct {
	User     string
	Password string
	Host     string
	Database string
}

// DefaultDatabase is the database holding the logs and cohorts tables.
const DefaultDatabase = "curriculum_logs"

// SQLSource fetches the raw table with LogsQuery over database/sql.
type SQLSource struct {
	db     *sql.DB
	query  string
	logger *slog.Logger
}

func newSQLSource(db *sql.DB, logger *slog.Logger) *SQLSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLSource{db: db, query: LogsQuery, logger: logger}
}

// Fetch runs the join query and returns its result as a text table with a
// row_index column prepended.
func (s *SQLSource) Fetch(ctx context.Context) (*frame.Table, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	t, err := scanTable(rows)
	if err != nil {
		return nil, err
	}
	if t, err = withRowIndex(t); err != nil {
		return nil, err
	}
	if err := models.CheckColumns(t, "record source", models.RequiredColumns...); err != nil {
		return nil, err
	}

	s.logger.Info("fetched log records", "rows", t.Len(), "columns", len(t.Columns()))
	return t, nil
}

// Close closes the database handle.
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// Text layouts of driver-parsed time values, keyed by declared column
// type. They match what the MySQL driver returns without parseTime.
const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05.999999999"
	timeLayout     = "15:04:05.999999999"
)

// scanTable reads every row as nullable text.
func scanTable(rows *sql.Rows) (*frame.Table, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	names := make([]string, len(types))
	declared := make([]string, len(types))
	for i, ct := range types {
		names[i] = ct.Name()
		declared[i] = strings.ToUpper(ct.DatabaseTypeName())
	}

	values := make([][]frame.Value, len(names))
	dest := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		for i, d := range dest {
			text, ok, err := cellText(d, declared[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", names[i], err)
			}
			if ok {
				values[i] = append(values[i], frame.String(text))
			} else {
				values[i] = append(values[i], frame.Null(frame.KindString))
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	columns := make([]frame.Column, len(names))
	for i, name := range names {
		columns[i] = frame.Column{Name: name, Kind: frame.KindString, Values: values[i]}
		if columns[i].Values == nil {
			columns[i].Values = []frame.Value{}
		}
	}
	t, err := frame.New(columns...)
	if err != nil {
		return nil, fmt.Errorf("building table: %w", err)
	}
	return t, nil
}

// cellText renders a scanned cell as text. Drivers that parse DATE,
// DATETIME, TIMESTAMP or TIME columns get their values formatted back to
// the layout of the declared type. ok is false for NULL.
func cellText(v any, declared string) (text string, ok bool, err error) {
	switch v := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	case []byte:
		return string(v), true, nil
	case int64:
		return strconv.FormatInt(v, 10), true, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true, nil
	case bool:
		return strconv.FormatBool(v), true, nil
	case time.Time:
		return formatTime(v, declared), true, nil
	default:
		return "", false, fmt.Errorf("unsupported value type %T", v)
	}
}

func formatTime(t time.Time, declared string) string {
	switch {
	case strings.HasPrefix(declared, "DATETIME"), strings.HasPrefix(declared, "TIMESTAMP"):
		return t.Format(datetimeLayout)
	case strings.HasPrefix(declared, "DATE"):
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(dateLayout)
		}
		return t.Format(datetimeLayout)
	case strings.HasPrefix(declared, "TIME"):
		return t.Format(timeLayout)
	default:
		return t.Format(datetimeLayout)
	}
}

// withRowIndex prepends a row_index column numbering the rows from zero,
// the same column a snapshot carries. Tables that already have one are
// returned unchanged.
func withRowIndex(t *frame.Table) (*frame.Table, error) {
	if t.Has(models.ColRowIndex) {
		return t, nil
	}

	index := make([]frame.Value, t.Len())
	for i := range index {
		index[i] = frame.String(strconv.Itoa(i))
	}

	columns := []frame.Column{{Name: models.ColRowIndex, Kind: frame.KindString, Values: index}}
	for _, name := range t.Columns() {
		col, _ := t.Column(name)
		columns = append(columns, col)
	}
	return frame.New(columns...)
}
