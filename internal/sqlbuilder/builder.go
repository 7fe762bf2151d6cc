// Package sqlbuilder renders INSERT, UPDATE and insert-or-update statements
// by plain string concatenation.
//
// Values are NOT escaped: a string value is wrapped in single quotes as-is
// and anything else is rendered with its fmt default format. Only feed it
// trusted input. The Unsafe name is kept on purpose so that a parameterized
// builder can replace it without callers confusing the two.
package sqlbuilder

import (
	"fmt"
	"strings"
)

// DefaultWhere is the condition used until Where is called. It matches no
// rows, so an UPDATE built without a condition changes nothing.
const DefaultWhere = "1=2"

// mode selects what SQL renders.
type mode int

const (
	modeNone mode = iota
	modeInsert
	modeUpdate
)

// Pair is one column and its already rendered SQL literal.
type Pair struct {
	Column  string
	Literal string
}

// Source supplies a table name and column/literal pairs, typically a record
// bound to its schema.
type Source interface {
	TableName() string
	// Pairs returns every persisted column, or only the named ones.
	Pairs(only ...string) []Pair
}

// Upsert is the three-part result of InsertOrUpdate. The caller runs Exists
// first: a zero count selects Insert, anything else selects Update.
type Upsert struct {
	Exists string
	Insert string
	Update string
}

// Unsafe accumulates fields and renders unescaped SQL text.
// It is not safe for concurrent use; it may be reused after Reset.
type Unsafe struct {
	table string
	pairs []Pair
	where string
	mode  mode
	sql   string
}

// New creates an empty builder.
func New() *Unsafe {
	return &Unsafe{where: DefaultWhere}
}

// Table sets the target table.
func (b *Unsafe) Table(table string) *Unsafe {
	b.table = table
	return b
}

// String adds a string-like field; the value is rendered in single quotes.
func (b *Unsafe) String(field string, value any) *Unsafe {
	b.pairs = append(b.pairs, Pair{Column: field, Literal: Quoted(value)})
	return b
}

// Numeric adds a field rendered unquoted.
func (b *Unsafe) Numeric(field string, value any) *Unsafe {
	b.pairs = append(b.pairs, Pair{Column: field, Literal: Plain(value)})
	return b
}

// Raw adds a field with a literal that is used verbatim, e.g. NULL or NOW().
func (b *Unsafe) Raw(field, literal string) *Unsafe {
	b.pairs = append(b.pairs, Pair{Column: field, Literal: literal})
	return b
}

// Where sets the condition used by UPDATE.
func (b *Unsafe) Where(condition string) *Unsafe {
	b.where = condition
	return b
}

// Reset clears the fields and restores the default condition.
// The target table is kept.
func (b *Unsafe) Reset() *Unsafe {
	b.pairs = b.pairs[:0]
	b.where = DefaultWhere
	b.mode = modeNone
	b.sql = ""
	return b
}

// Insert makes SQL render an INSERT statement.
func (b *Unsafe) Insert() *Unsafe {
	b.mode = modeInsert
	return b
}

// Update makes SQL render an UPDATE statement.
func (b *Unsafe) Update() *Unsafe {
	b.mode = modeUpdate
	return b
}

// Fields returns the accumulated field names in insertion order.
func (b *Unsafe) Fields() []string {
	out := make([]string, len(b.pairs))
	for i, p := range b.pairs {
		out[i] = p.Column
	}
	return out
}

// SQL renders the statement selected by Insert or Update. For statements
// produced by Save and UpdateRecord it returns that text.
func (b *Unsafe) SQL() string {
	switch b.mode {
	case modeInsert:
		b.sql = renderInsert(b.table, b.pairs)
	case modeUpdate:
		b.sql = renderUpdate(b.table, b.pairs, b.where)
	}
	return b.sql
}

// InsertOrUpdate builds the existence check, INSERT and UPDATE statements
// for an upsert keyed on the given field names. The predicate ANDs
// field=value for every accumulated field named in keys. The UPDATE uses
// the same predicate as its condition.
func (b *Unsafe) InsertOrUpdate(keys ...string) Upsert {
	var conds []string
	for _, key := range keys {
		for _, p := range b.pairs {
			if p.Column == key {
				conds = append(conds, key+"="+p.Literal)
			}
		}
	}
	condition := strings.Join(conds, " AND ")

	b.where = condition
	up := Upsert{
		Exists: fmt.Sprintf("SELECT COUNT(*) AS R FROM %s WHERE %s", b.table, condition),
		Insert: renderInsert(b.table, b.pairs),
		Update: renderUpdate(b.table, b.pairs, condition),
	}

	b.mode = modeNone
	b.sql = up.Exists + "^^^^" + up.Insert + "^^^^" + up.Update
	return up
}

// Save renders an INSERT of every column of src. The builder's table, when
// set, overrides the source's table.
func (b *Unsafe) Save(src Source) *Unsafe {
	b.sql = renderInsert(b.targetFor(src), src.Pairs())
	b.mode = modeNone
	return b
}

// UpdateRecord renders an UPDATE of src's columns with the given condition.
// When fields is non-empty only those fields are set.
func (b *Unsafe) UpdateRecord(src Source, where string, fields ...string) *Unsafe {
	b.sql = renderUpdate(b.targetFor(src), src.Pairs(fields...), where)
	b.mode = modeNone
	return b
}

func (b *Unsafe) targetFor(src Source) string {
	if b.table != "" {
		return b.table
	}
	return src.TableName()
}

// Delete renders a DELETE statement.
func Delete(table, condition string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s", table, condition)
}

// Quoted renders v in single quotes without escaping.
func Quoted(v any) string {
	return "'" + fmt.Sprint(v) + "'"
}

// Plain renders v with its default format.
func Plain(v any) string {
	return fmt.Sprint(v)
}

func renderInsert(table string, pairs []Pair) string {
	cols := make([]string, len(pairs))
	vals := make([]string, len(pairs))
	for i, p := range pairs {
		cols[i] = p.Column
		vals[i] = p.Literal
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	sb.WriteString("(")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(") VALUES(")
	sb.WriteString(strings.Join(vals, ", "))
	sb.WriteString(")")
	return sb.String()
}

func renderUpdate(table string, pairs []Pair, where string) string {
	sets := make([]string, len(pairs))
	for i, p := range pairs {
		sets[i] = p.Column + "=" + p.Literal
	}
	return "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE " + where
}
