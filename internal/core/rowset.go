package core

import (
	"database/sql"
	"strings"

	"github.com/coregx/dbfactory/internal/logger"
	"github.com/coregx/dbfactory/internal/orm"
)

// RowSet is the scoped result of one Query or Update call. A query row set
// holds open rows and must be closed; an update row set holds the
// statement result. A failed call yields a row set that is not Valid.
//
// A RowSet is owned by the goroutine that obtained it.
type RowSet struct {
	alias  string
	rows   *sql.Rows
	result sql.Result
	err    error
	log    logger.Logger
	closed bool
}

func failedRowSet(alias string, err error) *RowSet {
	return &RowSet{alias: alias, err: err}
}

// Valid reports whether the statement ran.
func (rs *RowSet) Valid() bool {
	return rs != nil && rs.err == nil && (rs.rows != nil || rs.result != nil)
}

// Err returns the failure that made the row set ineffective.
func (rs *RowSet) Err() error {
	if rs == nil {
		return ErrNoResult
	}
	return rs.err
}

// Alias returns the alias the statement ran against.
func (rs *RowSet) Alias() string {
	if rs == nil {
		return ""
	}
	return rs.alias
}

// Rows returns the underlying rows, or nil.
func (rs *RowSet) Rows() *sql.Rows {
	if rs == nil {
		return nil
	}
	return rs.rows
}

// Next advances to the next row. It returns false for an ineffective row set.
func (rs *RowSet) Next() bool {
	if rs == nil || rs.rows == nil || rs.closed {
		return false
	}
	return rs.rows.Next()
}

// Scan copies the current row into dest.
func (rs *RowSet) Scan(dest ...any) error {
	if rs == nil || rs.rows == nil {
		return ErrNoResult
	}
	return rs.rows.Scan(dest...)
}

// Columns returns the result column names.
func (rs *RowSet) Columns() ([]string, error) {
	if rs == nil || rs.rows == nil {
		return nil, ErrNoResult
	}
	return rs.rows.Columns()
}

// Value returns column of the current row. An empty column name selects the
// first column.
func (rs *RowSet) Value(column string) (any, error) {
	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, c := range cols {
		if column == "" || strings.EqualFold(c, column) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, WrapError(ErrNoColumn, column)
	}

	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rs.rows.Scan(dest...); err != nil {
		return nil, err
	}
	return values[idx], nil
}

// LastInsertID returns the id generated by a single-row INSERT, or -1 when
// the driver does not report one.
func (rs *RowSet) LastInsertID() int64 {
	if rs == nil || rs.result == nil {
		return -1
	}
	id, err := rs.result.LastInsertId()
	if err != nil {
		return -1
	}
	return id
}

// RowsAffected returns the number of rows changed by an update, or -1.
func (rs *RowSet) RowsAffected() int64 {
	if rs == nil || rs.result == nil {
		return -1
	}
	n, err := rs.result.RowsAffected()
	if err != nil {
		return -1
	}
	return n
}

// Close releases the rows. It is safe to call more than once and on a nil
// or ineffective row set.
func (rs *RowSet) Close() error {
	if rs == nil || rs.closed {
		return nil
	}
	rs.closed = true
	if rs.rows == nil {
		return nil
	}
	err := rs.rows.Close()
	if err != nil && rs.log != nil {
		rs.log.Warn("closing rows failed", "alias", rs.alias, "error", err)
	}
	return err
}

// All reads every remaining row of rs through schema and closes rs.
// Rows that fail to convert are skipped and logged.
func All[T any](rs *RowSet, schema *orm.Schema[T]) ([]T, error) {
	if rs == nil {
		return nil, ErrNoResult
	}
	defer rs.Close()

	if !rs.Valid() || rs.rows == nil {
		if rs.err != nil {
			return nil, rs.err
		}
		return nil, ErrNoResult
	}
	return orm.Materialize(rs.rows, schema, rs.log)
}
