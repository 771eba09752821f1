// Package frame provides an immutable, column-ordered table of typed,
// nullable cells used by the wrangling pipeline.
package frame

import (
	"strconv"
	"time"
)

// Kind is the type of the values held by a column.
type Kind uint8

const (
	KindString Kind = iota
	KindInt
	KindTime
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// ParseKind parses a kind name produced by Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "string":
		return KindString, true
	case "int":
		return KindInt, true
	case "time":
		return KindTime, true
	default:
		return KindString, false
	}
}

// TimeLayout is the layout used when rendering time values as text.
const TimeLayout = "2006-01-02 15:04:05"

// Value is a single nullable cell.
type Value struct {
	kind  Kind
	valid bool
	s     string
	i     int64
	t     time.Time
}

// Null returns a null value of the given kind.
func Null(kind Kind) Value {
	return Value{kind: kind}
}

// String returns a non-null string value.
func String(s string) Value {
	return Value{kind: KindString, valid: true, s: s}
}

// Int returns a non-null int value.
func Int(i int64) Value {
	return Value{kind: KindInt, valid: true, i: i}
}

// Time returns a non-null time value.
func Time(t time.Time) Value {
	return Value{kind: KindTime, valid: true, t: t}
}

// Kind returns the value kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return !v.valid }

// Str returns the string payload and whether it is set.
func (v Value) Str() (string, bool) {
	if !v.valid || v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Int64 returns the int payload and whether it is set.
func (v Value) Int64() (int64, bool) {
	if !v.valid || v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// TimeValue returns the time payload and whether it is set.
func (v Value) TimeValue() (time.Time, bool) {
	if !v.valid || v.kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

// Text renders the value as text. Null values render as "".
func (v Value) Text() string {
	if !v.valid {
		return ""
	}
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindTime:
		return v.t.Format(TimeLayout)
	default:
		return v.s
	}
}

// Interface returns the payload as a Go value, or nil when null.
func (v Value) Interface() any {
	if !v.valid {
		return nil
	}
	switch v.kind {
	case KindInt:
		return v.i
	case KindTime:
		return v.t
	default:
		return v.s
	}
}

// Equal reports whether two values have the same kind, nullness and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.valid != o.valid {
		return false
	}
	if !v.valid {
		return true
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindTime:
		return v.t.Equal(o.t)
	default:
		return v.s == o.s
	}
}
