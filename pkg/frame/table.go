package frame

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrLengthMismatch is returned when a column length differs from the table length.
	ErrLengthMismatch = errors.New("column length does not match table length")

	// ErrKindMismatch is returned when a value kind differs from its column kind.
	ErrKindMismatch = errors.New("value kind does not match column kind")
)

// Column is a named, typed column of nullable values.
type Column struct {
	Name   string
	Kind   Kind
	Values []Value
}

// NewColumn creates a column. Values are copied.
func NewColumn(name string, kind Kind, values []Value) Column {
	return Column{Name: name, Kind: kind, Values: append([]Value(nil), values...)}
}

func (c Column) validate() error {
	for i, v := range c.Values {
		if v.kind != c.Kind {
			return fmt.Errorf("column %q row %d: %w (%s != %s)", c.Name, i, ErrKindMismatch, v.kind, c.Kind)
		}
	}
	return nil
}

func (c Column) clone() Column {
	return Column{Name: c.Name, Kind: c.Kind, Values: append([]Value(nil), c.Values...)}
}

// Table is an immutable table. Every method that changes shape or content
// returns a new table that shares no storage with the receiver.
//
// Each row carries a row id (its position in the table it was loaded from)
// and, once SetIndex has been called, a time index.
type Table struct {
	columns   []Column
	rowIDs    []int
	index     []time.Time
	indexName string
}

// New builds a table from columns. Row ids are assigned 0..n-1.
func New(columns ...Column) (*Table, error) {
	n := 0
	if len(columns) > 0 {
		n = len(columns[0].Values)
	}

	seen := make(map[string]struct{}, len(columns))
	t := &Table{columns: make([]Column, 0, len(columns)), rowIDs: make([]int, n)}
	for _, c := range columns {
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if len(c.Values) != n {
			return nil, fmt.Errorf("column %q has %d rows, want %d: %w", c.Name, len(c.Values), n, ErrLengthMismatch)
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
		t.columns = append(t.columns, c.clone())
	}
	for i := range t.rowIDs {
		t.rowIDs[i] = i
	}
	return t, nil
}

// MustNew is like New but panics on error. Intended for tests and literals.
func MustNew(columns ...Column) *Table {
	t, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rowIDs) }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the table has a column with the given name.
func (t *Table) Has(name string) bool {
	return t.position(name) >= 0
}

func (t *Table) position(name string) int {
	for i, c := range t.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) (Column, bool) {
	p := t.position(name)
	if p < 0 {
		return Column{}, false
	}
	return t.columns[p].clone(), true
}

// Value returns the cell at row for the named column. A missing column
// yields a null string.
func (t *Table) Value(row int, name string) Value {
	p := t.position(name)
	if p < 0 {
		return Null(KindString)
	}
	return t.columns[p].Values[row]
}

// Row returns the cells of one row in column order.
func (t *Table) Row(row int) []Value {
	out := make([]Value, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.Values[row]
	}
	return out
}

// RowID returns the row id of row.
func (t *Table) RowID(row int) int { return t.rowIDs[row] }

// RowIDs returns a copy of the row ids.
func (t *Table) RowIDs() []int { return append([]int(nil), t.rowIDs...) }

// Indexed reports whether the table has a time index.
func (t *Table) Indexed() bool { return t.index != nil }

// IndexName returns the name of the index, or "" when not indexed.
func (t *Table) IndexName() string { return t.indexName }

// IndexAt returns the index value of row. It returns the zero time when
// the table is not indexed.
func (t *Table) IndexAt(row int) time.Time {
	if t.index == nil {
		return time.Time{}
	}
	return t.index[row]
}

// Index returns a copy of the time index.
func (t *Table) Index() []time.Time {
	if t.index == nil {
		return nil
	}
	return append([]time.Time(nil), t.index...)
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{
		columns:   make([]Column, len(t.columns)),
		rowIDs:    append([]int(nil), t.rowIDs...),
		indexName: t.indexName,
	}
	if t.index != nil {
		out.index = append([]time.Time(nil), t.index...)
	}
	for i, c := range t.columns {
		out.columns[i] = c.clone()
	}
	return out
}

// Filter returns a table holding the rows for which keep returns true,
// in their original order.
func (t *Table) Filter(keep func(row int) bool) *Table {
	var rows []int
	for i := 0; i < t.Len(); i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return t.take(rows)
}

// take builds a table from the given row positions.
func (t *Table) take(rows []int) *Table {
	out := &Table{
		columns:   make([]Column, len(t.columns)),
		rowIDs:    make([]int, len(rows)),
		indexName: t.indexName,
	}
	if t.index != nil {
		out.index = make([]time.Time, len(rows))
	}
	for ci, c := range t.columns {
		vals := make([]Value, len(rows))
		for j, r := range rows {
			vals[j] = c.Values[r]
		}
		out.columns[ci] = Column{Name: c.Name, Kind: c.Kind, Values: vals}
	}
	for j, r := range rows {
		out.rowIDs[j] = t.rowIDs[r]
		if t.index != nil {
			out.index[j] = t.index[r]
		}
	}
	return out
}

// WithColumn returns a table with col added. A column with the same name
// is replaced in place; otherwise col is appended.
func (t *Table) WithColumn(col Column) (*Table, error) {
	if len(col.Values) != t.Len() {
		return nil, fmt.Errorf("column %q has %d rows, want %d: %w", col.Name, len(col.Values), t.Len(), ErrLengthMismatch)
	}
	if err := col.validate(); err != nil {
		return nil, err
	}

	out := t.Clone()
	if p := out.position(col.Name); p >= 0 {
		out.columns[p] = col.clone()
	} else {
		out.columns = append(out.columns, col.clone())
	}
	return out, nil
}

// Drop returns a table without the named columns. Absent names are ignored.
func (t *Table) Drop(names ...string) *Table {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}

	out := t.Clone()
	kept := out.columns[:0]
	for _, c := range out.columns {
		if _, ok := drop[c.Name]; !ok {
			kept = append(kept, c)
		}
	}
	out.columns = kept
	return out
}

// SetIndex moves the named time column into the index and stably sorts the
// rows by it in ascending order. Rows with equal index values keep their
// relative order. The column must be of KindTime with no nulls.
func (t *Table) SetIndex(name string) (*Table, error) {
	p := t.position(name)
	if p < 0 {
		return nil, fmt.Errorf("index column %q not found", name)
	}
	col := t.columns[p]
	if col.Kind != KindTime {
		return nil, fmt.Errorf("index column %q: %w (%s)", name, ErrKindMismatch, col.Kind)
	}

	index := make([]time.Time, len(col.Values))
	for i, v := range col.Values {
		ts, ok := v.TimeValue()
		if !ok {
			return nil, fmt.Errorf("index column %q row %d is null", name, t.rowIDs[i])
		}
		index[i] = ts
	}

	order := make([]int, len(index))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return index[order[a]].Before(index[order[b]])
	})

	staged := t.Drop(name)
	staged.index = index
	out := staged.take(order)
	out.indexName = name
	return out, nil
}

// JoinByRowID left-joins the columns of other onto t, matching rows by row
// id. Rows of t without a partner get nulls. Column names must not clash.
func (t *Table) JoinByRowID(other *Table) (*Table, error) {
	for _, c := range other.columns {
		if t.Has(c.Name) {
			return nil, fmt.Errorf("join: column %q exists on both sides", c.Name)
		}
	}

	lookup := make(map[int]int, other.Len())
	for i, id := range other.rowIDs {
		if _, dup := lookup[id]; dup {
			return nil, fmt.Errorf("join: duplicate row id %d on right side", id)
		}
		lookup[id] = i
	}

	out := t.Clone()
	for _, c := range other.columns {
		vals := make([]Value, t.Len())
		for i, id := range t.rowIDs {
			if j, ok := lookup[id]; ok {
				vals[i] = c.Values[j]
			} else {
				vals[i] = Null(c.Kind)
			}
		}
		out.columns = append(out.columns, Column{Name: c.Name, Kind: c.Kind, Values: vals})
	}
	return out, nil
}

// WithRowIDs returns a copy of t carrying the given row ids.
func (t *Table) WithRowIDs(ids []int) (*Table, error) {
	if len(ids) != t.Len() {
		return nil, fmt.Errorf("row ids: %w", ErrLengthMismatch)
	}
	out := t.Clone()
	out.rowIDs = append([]int(nil), ids...)
	return out, nil
}

// WithIndex returns a copy of t carrying the given index, in row order.
// Unlike SetIndex it does not sort.
func (t *Table) WithIndex(name string, index []time.Time) (*Table, error) {
	if len(index) != t.Len() {
		return nil, fmt.Errorf("index: %w", ErrLengthMismatch)
	}
	out := t.Clone()
	out.index = append([]time.Time(nil), index...)
	out.indexName = name
	return out, nil
}

// Equal reports whether both tables have identical columns, cells, row ids
// and index.
func (t *Table) Equal(o *Table) bool {
	if t.Len() != o.Len() || len(t.columns) != len(o.columns) || t.indexName != o.indexName {
		return false
	}
	if (t.index == nil) != (o.index == nil) {
		return false
	}
	for i := range t.rowIDs {
		if t.rowIDs[i] != o.rowIDs[i] {
			return false
		}
		if t.index != nil && !t.index[i].Equal(o.index[i]) {
			return false
		}
	}
	for ci, c := range t.columns {
		oc := o.columns[ci]
		if c.Name != oc.Name || c.Kind != oc.Kind {
			return false
		}
		for r := range c.Values {
			if !c.Values[r].Equal(oc.Values[r]) {
				return false
			}
		}
	}
	return true
}
