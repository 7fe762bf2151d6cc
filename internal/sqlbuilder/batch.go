package sqlbuilder

import "strings"

// BatchInsert renders one multi-row INSERT. Fields are added row after row;
// a repeat of the first field name starts the next row, so the first row
// defines the column list.
type BatchInsert struct {
	table string
	pairs []Pair
}

// NewBatchInsert creates a batch builder for table.
func NewBatchInsert(table string) *BatchInsert {
	return &BatchInsert{table: table}
}

// Table sets the target table.
func (b *BatchInsert) Table(table string) *BatchInsert {
	b.table = table
	return b
}

// String adds a quoted value.
func (b *BatchInsert) String(field string, value any) *BatchInsert {
	b.pairs = append(b.pairs, Pair{Column: field, Literal: Quoted(value)})
	return b
}

// Numeric adds an unquoted value.
func (b *BatchInsert) Numeric(field string, value any) *BatchInsert {
	b.pairs = append(b.pairs, Pair{Column: field, Literal: Plain(value)})
	return b
}

// Reset drops every accumulated row.
func (b *BatchInsert) Reset() *BatchInsert {
	b.pairs = b.pairs[:0]
	return b
}

// Rows returns the number of complete or partial rows accumulated.
func (b *BatchInsert) Rows() int {
	width := b.width()
	if width == 0 {
		return 0
	}
	return (len(b.pairs) + width - 1) / width
}

// width is the number of fields before the first field name repeats.
func (b *BatchInsert) width() int {
	if len(b.pairs) == 0 {
		return 0
	}
	first := b.pairs[0].Column
	for i := 1; i < len(b.pairs); i++ {
		if b.pairs[i].Column == first {
			return i
		}
	}
	return len(b.pairs)
}

// SQL renders the statement, or an empty string when nothing was added.
func (b *BatchInsert) SQL() string {
	width := b.width()
	if width == 0 {
		return ""
	}

	cols := make([]string, width)
	for i := 0; i < width; i++ {
		cols[i] = b.pairs[i].Column
	}

	rows := make([]string, 0, b.Rows())
	for start := 0; start < len(b.pairs); start += width {
		end := start + width
		if end > len(b.pairs) {
			end = len(b.pairs)
		}
		vals := make([]string, 0, width)
		for _, p := range b.pairs[start:end] {
			vals = append(vals, p.Literal)
		}
		rows = append(rows, "("+strings.Join(vals, ", ")+")")
	}

	return "INSERT INTO " + b.table + "(" + strings.Join(cols, ", ") + ") VALUES" + strings.Join(rows, ", ")
}
