package orm

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/coregx/dbfactory/internal/logger"
	"github.com/coregx/dbfactory/internal/sqlbuilder"
)

// Schema describes how records of type T map to a table.
// A Schema is immutable after NewSchema and safe for concurrent use.
type Schema[T any] struct {
	table  string
	fields []Field[T]
}

// NewSchema creates a schema for table with fields in declaration order.
func NewSchema[T any](table string, fields ...Field[T]) *Schema[T] {
	fs := make([]Field[T], len(fields))
	copy(fs, fields)
	return &Schema[T]{table: table, fields: fs}
}

// Table returns the table name.
func (s *Schema[T]) Table() string {
	return s.table
}

// Descriptors returns the field descriptors in declaration order.
func (s *Schema[T]) Descriptors() []Descriptor {
	out := make([]Descriptor, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Descriptor
	}
	return out
}

// Entry pairs a field with the 0-based result column it reads from.
type Entry struct {
	Field   Descriptor
	Ordinal int
	index   int
}

// Mapping is the ordered list of fields a result shape can populate.
type Mapping []Entry

// Ordinals returns the mapped column ordinals in field order.
func (m Mapping) Ordinals() []int {
	out := make([]int, len(m))
	for i, e := range m {
		out[i] = e.Ordinal
	}
	return out
}

// Mapping matches the schema against the columns of one result set.
// Ignored fields and fields without a matching column are left out. When
// several columns match a field, the first one wins.
func (s *Schema[T]) Mapping(columns []string) Mapping {
	var m Mapping
	for i, f := range s.fields {
		if f.Ignore {
			continue
		}
		name := f.ColumnName()
		for ord, col := range columns {
			if strings.EqualFold(col, name) {
				m = append(m, Entry{Field: f.Descriptor, Ordinal: ord, index: i})
				break
			}
		}
	}
	return m
}

// Apply copies the mapped values of one scanned row into rec.
func (s *Schema[T]) Apply(m Mapping, values []any, rec *T) error {
	for _, e := range m {
		if e.Ordinal >= len(values) {
			return fmt.Errorf("orm: column %d out of range for field %s", e.Ordinal, e.Field.Name)
		}
		if err := s.fields[e.index].set(rec, values[e.Ordinal]); err != nil {
			return fmt.Errorf("orm: field %s: %w", e.Field.Name, err)
		}
	}
	return nil
}

// Rows is the part of *sql.Rows that Materialize needs.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

var _ Rows = (*sql.Rows)(nil)

// Materialize reads every remaining row into a new T. The mapping is
// computed once from the result's columns. A row that fails to scan or
// convert is logged and skipped; an iteration error is returned together
// with the records read so far. Materialize does not close rows.
func Materialize[T any](rows Rows, schema *Schema[T], log logger.Logger) ([]T, error) {
	if log == nil {
		log = &logger.NoopLogger{}
	}

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("orm: columns: %w", err)
	}
	m := schema.Mapping(cols)

	var out []T
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}

	row := 0
	for rows.Next() {
		row++
		for i := range values {
			values[i] = nil
		}
		if err := rows.Scan(dest...); err != nil {
			log.Warn("skipping row", "table", schema.table, "row", row, "error", err)
			continue
		}

		var rec T
		if err := schema.Apply(m, values, &rec); err != nil {
			log.Warn("skipping row", "table", schema.table, "row", row, "error", err)
			continue
		}
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("orm: reading %s: %w", schema.table, err)
	}
	return out, nil
}

// Bound is a record bound to its schema. It implements sqlbuilder.Source.
type Bound[T any] struct {
	schema *Schema[T]
	rec    *T
}

var _ sqlbuilder.Source = Bound[struct{}]{}

// Bind pairs rec with the schema for rendering INSERT or UPDATE text.
func (s *Schema[T]) Bind(rec *T) Bound[T] {
	return Bound[T]{schema: s, rec: rec}
}

// TableName returns the schema's table.
func (b Bound[T]) TableName() string {
	return b.schema.table
}

// Pairs renders the record's non-ignored fields. Columns are the
// upper-cased derived names unless a column override is set. When only is
// non-empty, a field is kept if its name or column matches one of them.
// A nil value or zero time renders as NULL.
func (b Bound[T]) Pairs(only ...string) []Pair {
	var out []Pair
	for _, f := range b.schema.fields {
		if f.Ignore {
			continue
		}
		col := f.Column
		if col == "" {
			col = strings.ToUpper(ColumnName(f.Name))
		}
		if len(only) > 0 && !selected(only, f.Name, col) {
			continue
		}
		out = append(out, Pair{Column: col, Literal: literal(f.Kind, f.get(b.rec))})
	}
	return out
}

// Pair is re-exported so Bound satisfies sqlbuilder.Source.
type Pair = sqlbuilder.Pair

func selected(only []string, name, col string) bool {
	for _, o := range only {
		if o == name || strings.EqualFold(o, col) || strings.EqualFold(ColumnName(o), ColumnName(name)) {
			return true
		}
	}
	return false
}

func literal(kind Kind, v any) string {
	if v == nil {
		return "NULL"
	}
	if kind == KindNumeric {
		return sqlbuilder.Plain(v)
	}
	return sqlbuilder.Quoted(v)
}
