// Package export writes processed views to delimited and spreadsheet files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// WorkbookName is the file name of the spreadsheet holding every view.
const WorkbookName = "views.xlsx"

// Config controls where and how views are exported.
type Config struct {
	Dir     string   `yaml:"dir"`
	Formats []string `yaml:"formats"`
}

// Validate checks the export formats.
func (c Config) Validate() error {
	for _, f := range c.Formats {
		if f != FormatCSV && f != FormatXLSX {
			return fmt.Errorf("unknown export format %q (supported: csv, xlsx)", f)
		}
	}
	if len(c.Formats) > 0 && c.Dir == "" {
		return fmt.Errorf("export dir must be set when formats are configured")
	}
	return nil
}

// View is a named table to export.
type View struct {
	Name  string
	Table *frame.Table
}

// header returns the column names written for t. An indexed table gets
// its index as the leading column.
func header(t *frame.Table) []string {
	cols := t.Columns()
	if !t.Indexed() {
		return cols
	}
	return append([]string{t.IndexName()}, cols...)
}

// record renders one row as text, index first.
func record(t *frame.Table, row int, dst []string) []string {
	dst = dst[:0]
	if t.Indexed() {
		dst = append(dst, t.IndexAt(row).Format(frame.TimeLayout))
	}
	for _, v := range t.Row(row) {
		dst = append(dst, v.Text())
	}
	return dst
}

// WriteCSV writes t as CSV. Null cells are written empty.
func WriteCSV(w io.Writer, t *frame.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header(t)); err != nil {
		return err
	}

	var rec []string
	for row := 0; row < t.Len(); row++ {
		rec = record(t, row, rec)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes t to path, creating parent directories.
func WriteCSVFile(path string, t *frame.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := WriteCSV(f, t); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// WriteXLSX writes each view to its own sheet of a workbook at path.
func WriteXLSX(path string, views []View) error {
	if len(views) == 0 {
		return fmt.Errorf("no views to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, v := range views {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", v.Name); err != nil {
				return fmt.Errorf("naming sheet %s: %w", v.Name, err)
			}
		} else if _, err := f.NewSheet(v.Name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", v.Name, err)
		}
		if err := writeSheet(f, v); err != nil {
			return fmt.Errorf("writing sheet %s: %w", v.Name, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}
	return f.SaveAs(path)
}

func writeSheet(f *excelize.File, v View) error {
	sw, err := f.NewStreamWriter(v.Name)
	if err != nil {
		return err
	}

	names := header(v.Table)
	cells := make([]any, len(names))
	for i, name := range names {
		cells[i] = name
	}
	if err := sw.SetRow("A1", cells); err != nil {
		return err
	}

	var rec []string
	for row := 0; row < v.Table.Len(); row++ {
		rec = record(v.Table, row, rec)
		cells := make([]any, len(rec))
		for i, s := range rec {
			cells[i] = s
		}
		// Keep ints numeric in the sheet.
		offset := len(names) - len(v.Table.Columns())
		for i, val := range v.Table.Row(row) {
			if n, ok := val.Int64(); ok {
				cells[i+offset] = n
			}
		}

		cell, err := excelize.CoordinatesToCellName(1, row+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return err
		}
	}

	return sw.Flush()
}

// Exporter writes views in the configured formats.
type Exporter struct {
	cfg    Config
	logger *slog.Logger
}

// NewExporter creates an exporter.
func NewExporter(cfg Config, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{cfg: cfg, logger: logger}
}

// Export writes every view in every configured format and returns the
// paths written.
func (e *Exporter) Export(views []View) ([]string, error) {
	var written []string
	for _, format := range e.cfg.Formats {
		switch format {
		case FormatCSV:
			for _, v := range views {
				path := filepath.Join(e.cfg.Dir, v.Name+".csv")
				if err := WriteCSVFile(path, v.Table); err != nil {
					return written, err
				}
				written = append(written, path)
			}
		case FormatXLSX:
			path := filepath.Join(e.cfg.Dir, WorkbookName)
			if err := WriteXLSX(path, views); err != nil {
				return written, fmt.Errorf("writing %s: %w", path, err)
			}
			written = append(written, path)
		default:
			return written, fmt.Errorf("unknown export format %q", format)
		}
	}

	if len(written) > 0 {
		e.logger.Info("exported views", "files", len(written), "dir", e.cfg.Dir)
	}
	return written, nil
}
