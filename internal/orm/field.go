// Package orm maps result rows to records and records to SQL literals.
//
// Record types are described once by a Schema built from field descriptors;
// no reflection is involved. A field's column is its explicit override or
// is derived from the field name by inserting an underscore between a
// lower-case and an upper-case letter, so joinTime maps to join_time. Column
// names are matched case-insensitively.
package orm

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Kind tells how a field's value is rendered into SQL text.
type Kind int

const (
	// KindString values are rendered in single quotes.
	KindString Kind = iota
	// KindNumeric values are rendered unquoted.
	KindNumeric
)

func (k Kind) String() string {
	if k == KindNumeric {
		return "numeric"
	}
	return "string"
}

// TimeLayout is used to render time fields into SQL text.
const TimeLayout = "2006-01-02 15:04:05"

var timeLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Descriptor is the type-independent part of a field description.
type Descriptor struct {
	// Name is the field name used for convention-based column derivation.
	Name string
	// Column overrides the derived column name when not empty.
	Column string
	Kind   Kind
	// Ignore excludes the field from reads and writes.
	Ignore bool
}

// ColumnName returns the column the descriptor maps to.
func (d Descriptor) ColumnName() string {
	if d.Column != "" {
		return d.Column
	}
	return ColumnName(d.Name)
}

// ColumnName derives a column name from a mixed-case field name.
func ColumnName(field string) string {
	var sb strings.Builder
	sb.Grow(len(field) + 4)

	var prev byte
	for i := 0; i < len(field); i++ {
		c := field[i]
		if isLower(prev) && isUpper(c) {
			sb.WriteByte('_')
		}
		sb.WriteByte(c)
		prev = c
	}
	return strings.ToLower(sb.String())
}

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

// Option adjusts a field descriptor.
type Option func(*Descriptor)

// Column sets an explicit column name.
func Column(name string) Option {
	return func(d *Descriptor) { d.Column = name }
}

// Ignore excludes the field from mapping.
func Ignore() Option {
	return func(d *Descriptor) { d.Ignore = true }
}

// Numeric renders the field unquoted.
func Numeric() Option {
	return func(d *Descriptor) { d.Kind = KindNumeric }
}

// Quoted renders the field in single quotes.
func Quoted() Option {
	return func(d *Descriptor) { d.Kind = KindString }
}

// Field describes one persisted field of T.
type Field[T any] struct {
	Descriptor
	get func(*T) any
	set func(*T, any) error
}

func newField[T any](name string, kind Kind, get func(*T) any, set func(*T, any) error, opts []Option) Field[T] {
	f := Field[T]{
		Descriptor: Descriptor{Name: name, Kind: kind},
		get:        get,
		set:        set,
	}
	for _, opt := range opts {
		opt(&f.Descriptor)
	}
	return f
}

// String describes a string field. Quoted by default.
func String[T any](name string, ref func(*T) *string, opts ...Option) Field[T] {
	return newField(name, KindString,
		func(r *T) any { return *ref(r) },
		func(r *T, v any) error {
			var ns sql.NullString
			if err := ns.Scan(v); err != nil {
				return err
			}
			*ref(r) = ns.String
			return nil
		}, opts)
}

// Int64 describes an int64 field. Unquoted by default.
func Int64[T any](name string, ref func(*T) *int64, opts ...Option) Field[T] {
	return newField(name, KindNumeric,
		func(r *T) any { return *ref(r) },
		func(r *T, v any) error {
			var n sql.NullInt64
			if err := n.Scan(v); err != nil {
				return err
			}
			*ref(r) = n.Int64
			return nil
		}, opts)
}

// Int describes an int field. Unquoted by default.
func Int[T any](name string, ref func(*T) *int, opts ...Option) Field[T] {
	return newField(name, KindNumeric,
		func(r *T) any { return *ref(r) },
		func(r *T, v any) error {
			var n sql.NullInt64
			if err := n.Scan(v); err != nil {
				return err
			}
			*ref(r) = int(n.Int64)
			return nil
		}, opts)
}

// Float64 describes a float64 field. Unquoted by default.
func Float64[T any](name string, ref func(*T) *float64, opts ...Option) Field[T] {
	return newField(name, KindNumeric,
		func(r *T) any { return *ref(r) },
		func(r *T, v any) error {
			var n sql.NullFloat64
			if err := n.Scan(v); err != nil {
				return err
			}
			*ref(r) = n.Float64
			return nil
		}, opts)
}

// Bool describes a bool field rendered as 1 or 0. Unquoted by default.
func Bool[T any](name string, ref func(*T) *bool, opts ...Option) Field[T] {
	return newField(name, KindNumeric,
		func(r *T) any {
			if *ref(r) {
				return 1
			}
			return 0
		},
		func(r *T, v any) error {
			var b sql.NullBool
			if err := b.Scan(v); err != nil {
				return err
			}
			*ref(r) = b.Bool
			return nil
		}, opts)
}

// Time describes a time field. Quoted by default; the zero time is written as NULL.
func Time[T any](name string, ref func(*T) *time.Time, opts ...Option) Field[T] {
	return newField(name, KindString,
		func(r *T) any {
			t := *ref(r)
			if t.IsZero() {
				return nil
			}
			return t.Format(TimeLayout)
		},
		func(r *T, v any) error {
			t, err := toTime(v)
			if err != nil {
				return err
			}
			*ref(r) = t
			return nil
		}, opts)
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return x, nil
	case []byte:
		return parseTime(string(x))
	case string:
		return parseTime(x)
	}
	return time.Time{}, fmt.Errorf("orm: cannot convert %T to time.Time", v)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("orm: unrecognized time %q", s)
}
