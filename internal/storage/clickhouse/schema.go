package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
)

const schemaVersion = "1.0.0"

const viewMetaTableDDL = `
	CREATE TABLE IF NOT EXISTS view_meta (
		name String,
		table_name String,
		index_name String,
		columns Array(String),
		kinds Array(String),
		row_count UInt64,
		stored_at DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(stored_at)
	ORDER BY name
`

// InitializeSchema creates the metadata tables if they don't exist.
// View tables are created on store.
func InitializeSchema(ctx context.Context, conn driver.Conn) error {
	if err := createSchemaVersionTable(ctx, conn); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	currentVersion, err := getCurrentSchemaVersion(ctx, conn)
	if err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	if currentVersion != "" && currentVersion != schemaVersion {
		return fmt.Errorf("schema version mismatch: database has %s, code expects %s", currentVersion, schemaVersion)
	}

	if err := conn.Exec(ctx, viewMetaTableDDL); err != nil {
		return fmt.Errorf("creating table view_meta: %w", err)
	}

	if currentVersion == "" {
		if err := setSchemaVersion(ctx, conn, schemaVersion); err != nil {
			return fmt.Errorf("setting schema version: %w", err)
		}
	}

	return nil
}

func createSchemaVersionTable(ctx context.Context, conn driver.Conn) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version String,
			applied_at DateTime64(3) DEFAULT now64(3)
		) ENGINE = MergeTree()
		ORDER BY applied_at
	`
	return conn.Exec(ctx, ddl)
}

func getCurrentSchemaVersion(ctx context.Context, conn driver.Conn) (string, error) {
	var version string
	row := conn.QueryRow(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1")
	err := row.Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	return version, nil
}

func setSchemaVersion(ctx context.Context, conn driver.Conn, version string) error {
	return conn.Exec(ctx, "INSERT INTO schema_version (version) VALUES (?)", version)
}

func tableName(view string) string {
	return "view_" + view
}

func quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "\\`") + "`"
}

func columnType(kind frame.Kind) string {
	switch kind {
	case frame.KindInt:
		return "Nullable(Int64)"
	case frame.KindTime:
		return "Nullable(DateTime64(3, 'UTC'))"
	default:
		return "Nullable(String)"
	}
}

// viewTableDDL builds the table for one view. Cells are nullable and the
// insertion position keeps the view's row order.
func viewTableDDL(view string, names []string, kinds []frame.Kind) string {
	defs := []string{
		"_position UInt64",
		"_row_id Int64",
		"_index Nullable(DateTime64(3, 'UTC'))",
	}
	for i, name := range names {
		defs = append(defs, quote(name)+" "+columnType(kinds[i]))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n\t\t%s\n\t) ENGINE = MergeTree()\n\tORDER BY _position",
		quote(tableName(view)), strings.Join(defs, ",\n\t\t"))
}
