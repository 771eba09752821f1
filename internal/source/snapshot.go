package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

// CacheIOError reports a failure reading or writing the snapshot file.
type CacheIOError struct {
	Path string
	Op   string
	Err  error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("snapshot %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CacheIOError) Unwrap() error { return e.Err }

// ReadSnapshot loads a delimited snapshot. The first header field is the
// unnamed row index column and is loaded as row_index. Empty fields load
// as null.
func ReadSnapshot(path string) (*frame.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &CacheIOError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, &CacheIOError{Path: path, Op: "read header", Err: err}
	}
	if len(header) > 0 && header[0] == "" {
		header[0] = models.ColRowIndex
	}

	values := make([][]frame.Value, len(header))
	for i := range values {
		values[i] = []frame.Value{}
	}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &CacheIOError{Path: path, Op: "read", Err: err}
		}
		for i, field := range record {
			if field == "" {
				values[i] = append(values[i], frame.Null(frame.KindString))
				continue
			}
			values[i] = append(values[i], frame.String(field))
		}
	}

	columns := make([]frame.Column, len(header))
	for i, name := range header {
		columns[i] = frame.Column{Name: name, Kind: frame.KindString, Values: values[i]}
	}
	t, err := frame.New(columns...)
	if err != nil {
		return nil, &CacheIOError{Path: path, Op: "decode", Err: err}
	}
	if t, err = withRowIndex(t); err != nil {
		return nil, &CacheIOError{Path: path, Op: "decode", Err: err}
	}
	return t, nil
}

// WriteSnapshot writes t as a delimited snapshot with a leading unnamed
// row index column. The file is written to a temporary name in the same
// directory and renamed into place.
func WriteSnapshot(path string, t *frame.Table) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &CacheIOError{Path: path, Op: "create dir", Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return &CacheIOError{Path: path, Op: "create", Err: err}
	}
	defer os.Remove(tmp.Name())

	if err := encodeSnapshot(tmp, t); err != nil {
		tmp.Close()
		return &CacheIOError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &CacheIOError{Path: path, Op: "close", Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &CacheIOError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

func encodeSnapshot(w io.Writer, t *frame.Table) error {
	var names []string
	for _, name := range t.Columns() {
		if name != models.ColRowIndex {
			names = append(names, name)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{""}, names...)); err != nil {
		return err
	}

	record := make([]string, len(names)+1)
	for row := 0; row < t.Len(); row++ {
		record[0] = strconv.Itoa(row)
		if t.Has(models.ColRowIndex) {
			record[0] = t.Value(row, models.ColRowIndex).Text()
		}
		for i, name := range names {
			record[i+1] = t.Value(row, name).Text()
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
