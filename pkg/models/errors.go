package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested item is not found.
var ErrNotFound = errors.New("not found")

// SchemaError reports a required column that is absent from a table, or a
// value that breaks a structural assumption of the named column.
type SchemaError struct {
	Column string
	Op     string
	Detail string
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("%s: missing required column %q", e.Op, e.Column)
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: column %q: %s", e.Op, e.Column, e.Detail)
	}
	return msg
}

// ParseError reports a date/time value that failed to convert.
type ParseError struct {
	Table  string
	Column string
	RowID  int
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s table: parsing %s at row %d (%q): %v", e.Table, e.Column, e.RowID, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
