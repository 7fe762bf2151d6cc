package core

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/dbfactory/internal/logger"
	"github.com/coregx/dbfactory/internal/sqlbuilder"
	"github.com/coregx/dbfactory/internal/tracer"
)

// DB runs statements against registry aliases. Its methods never return
// statement errors: failures are logged and yield an ineffective RowSet,
// false or a zero value. Errors that show the server dropped the
// connection also evict the alias so the next call reconnects.
type DB struct {
	registry  *Registry
	logger    logger.Logger
	tracer    tracer.Tracer
	sanitizer *logger.Sanitizer
}

// Option is a functional option for configuring DB.
type Option func(*DB)

// WithLogger sets the logger for statement failures and lifecycle events.
func WithLogger(l logger.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.logger = l
		}
	}
}

// WithTracer sets the tracer for statement spans.
func WithTracer(t tracer.Tracer) Option {
	return func(db *DB) {
		if t != nil {
			db.tracer = t
		}
	}
}

// WithSanitizer sets the sanitizer applied to SQL text before it is logged
// or traced.
func WithSanitizer(s *logger.Sanitizer) Option {
	return func(db *DB) {
		if s != nil {
			db.sanitizer = s
		}
	}
}

// New creates a facade over registry.
func New(registry *Registry, opts ...Option) *DB {
	db := &DB{
		registry:  registry,
		logger:    logger.Default(),
		tracer:    &tracer.NoopTracer{},
		sanitizer: logger.NewSanitizer(nil),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Registry returns the underlying connection registry.
func (db *DB) Registry() *Registry {
	return db.registry
}

// Query runs a read statement. The returned RowSet must be closed.
func (db *DB) Query(ctx context.Context, alias, query string, args ...any) *RowSet {
	ctx, span := db.startSpan(ctx, tracer.SpanQuery)
	defer span.End()
	start := time.Now()

	h, err := db.registry.Get(ctx, alias)
	if err != nil {
		db.fail(span, alias, "", query, args, start, err)
		return failedRowSet(alias, err)
	}

	rows, err := h.DB().QueryContext(ctx, query, args...)
	if err != nil {
		db.fail(span, h.Alias(), h.Dialect().Name(), query, args, start, err)
		db.checkLost(h, err)
		return failedRowSet(h.Alias(), err)
	}

	db.succeed(span, h, query, args, start, -1)
	return &RowSet{alias: h.Alias(), rows: rows, log: db.logger}
}

// Update runs a mutating statement. The RowSet exposes the affected row
// count and, for a single-row INSERT, the generated id.
func (db *DB) Update(ctx context.Context, alias, query string, args ...any) *RowSet {
	ctx, span := db.startSpan(ctx, tracer.SpanUpdate)
	defer span.End()
	start := time.Now()

	h, err := db.registry.Get(ctx, alias)
	if err != nil {
		db.fail(span, alias, "", query, args, start, err)
		return failedRowSet(alias, err)
	}

	result, err := h.DB().ExecContext(ctx, query, args...)
	if err != nil {
		db.fail(span, h.Alias(), h.Dialect().Name(), query, args, start, err)
		db.checkLost(h, err)
		return failedRowSet(h.Alias(), err)
	}

	affected, _ := result.RowsAffected()
	db.succeed(span, h, query, args, start, affected)
	return &RowSet{alias: h.Alias(), result: result, log: db.logger}
}

// BatchUpdate runs statements as one transaction. Any failure rolls the
// transaction back and returns false. An empty batch succeeds.
func (db *DB) BatchUpdate(ctx context.Context, alias string, statements []string) bool {
	if len(statements) == 0 {
		return true
	}

	ctx, span := db.startSpan(ctx, tracer.SpanBatch)
	defer span.End()
	start := time.Now()

	meta := &tracer.QueryMetadata{
		Alias:      alias,
		Operation:  "BATCH",
		Statements: len(statements),
	}
	finish := func(err error) bool {
		meta.Duration = time.Since(start)
		meta.Error = err
		tracer.AddQueryAttributes(span, meta)
		return err == nil
	}

	h, err := db.registry.Get(ctx, alias)
	if err != nil {
		db.logger.Error("batch update failed", "alias", alias, "error", err)
		return finish(err)
	}
	meta.Alias = h.Alias()
	meta.Database = h.Dialect().Name()

	tx, err := h.DB().BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("batch update failed to begin", "alias", h.Alias(), "error", err)
		db.checkLost(h, err)
		return finish(err)
	}

	var affected int64
	for i, stmt := range statements {
		res, err := tx.ExecContext(ctx, stmt)
		if err != nil {
			db.logger.Error("batch update failed",
				"alias", h.Alias(),
				"statement", i,
				"sql", db.sanitizer.MaskSQL(stmt),
				"error", err,
			)
			db.rollback(h, tx)
			db.checkLost(h, err)
			return finish(err)
		}
		if n, err := res.RowsAffected(); err == nil {
			affected += n
		}
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("batch update failed to commit", "alias", h.Alias(), "error", err)
		db.rollback(h, tx)
		db.checkLost(h, err)
		return finish(err)
	}

	meta.RowsAffected = affected
	db.logger.Debug("batch update committed",
		"alias", h.Alias(),
		"statements", len(statements),
		"rows_affected", affected,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return finish(nil)
}

// IntValue returns column of the first row as an integer. found is false
// when the query fails, returns no rows or the value is not an integer.
func (db *DB) IntValue(ctx context.Context, alias, query, column string, args ...any) (value int64, found bool) {
	v, ok := db.firstValue(ctx, alias, query, column, args)
	if !ok {
		return 0, false
	}
	var n sql.NullInt64
	if err := n.Scan(v); err != nil {
		db.logger.Error("reading integer value failed", "alias", alias, "column", column, "error", err)
		return 0, false
	}
	return n.Int64, true
}

// StringValue returns column of the first row as a string. NULL reads as "".
func (db *DB) StringValue(ctx context.Context, alias, query, column string, args ...any) (value string, found bool) {
	v, ok := db.firstValue(ctx, alias, query, column, args)
	if !ok {
		return "", false
	}
	var s sql.NullString
	if err := s.Scan(v); err != nil {
		db.logger.Error("reading string value failed", "alias", alias, "column", column, "error", err)
		return "", false
	}
	return s.String, true
}

// RecordExists reports whether query returns at least one row. A failed
// query reports false.
func (db *DB) RecordExists(ctx context.Context, alias, query string, args ...any) bool {
	rs := db.Query(ctx, alias, query, args...)
	defer rs.Close()
	return rs.Next()
}

// RecordMissing is the negation of RecordExists.
func (db *DB) RecordMissing(ctx context.Context, alias, query string, args ...any) bool {
	return !db.RecordExists(ctx, alias, query, args...)
}

// Delete removes the rows of table matching condition.
func (db *DB) Delete(ctx context.Context, alias, table, condition string) *RowSet {
	return db.Update(ctx, alias, sqlbuilder.Delete(table, condition))
}

// Save inserts src. See sqlbuilder.Unsafe.Save.
func (db *DB) Save(ctx context.Context, alias string, src sqlbuilder.Source) *RowSet {
	return db.Update(ctx, alias, sqlbuilder.New().Save(src).SQL())
}

// Upsert inserts the builder's fields when no row matches keys and updates
// the matching rows otherwise. If the existence check fails nothing is
// written and the returned RowSet is not Valid.
func (db *DB) Upsert(ctx context.Context, alias string, b *sqlbuilder.Unsafe, keys ...string) *RowSet {
	up := b.InsertOrUpdate(keys...)

	count, ok := db.IntValue(ctx, alias, up.Exists, "R")
	if !ok {
		return failedRowSet(alias, WrapError(ErrNoResult, "upsert existence check"))
	}
	if count == 0 {
		return db.Update(ctx, alias, up.Insert)
	}
	return db.Update(ctx, alias, up.Update)
}

func (db *DB) firstValue(ctx context.Context, alias, query, column string, args []any) (any, bool) {
	rs := db.Query(ctx, alias, query, args...)
	defer rs.Close()

	if !rs.Valid() || !rs.Next() {
		return nil, false
	}
	v, err := rs.Value(column)
	if err != nil {
		db.logger.Error("reading value failed",
			"alias", rs.Alias(),
			"column", column,
			"sql", db.sanitizer.MaskSQL(query),
			"error", err,
		)
		return nil, false
	}
	return v, true
}

func (db *DB) startSpan(ctx context.Context, name string) (context.Context, tracer.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return db.tracer.StartSpan(ctx, name)
}

func (db *DB) fail(span tracer.Span, alias, database, query string, args []any, start time.Time, err error) {
	elapsed := time.Since(start)
	masked := db.sanitizer.MaskSQL(query)

	db.logger.Error("statement failed",
		"alias", alias,
		"sql", masked,
		"params", db.sanitizer.FormatParams(db.sanitizer.MaskParams(query, args)),
		"duration_ms", elapsed.Milliseconds(),
		"error", err,
	)
	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		SQL:       masked,
		Alias:     alias,
		Database:  database,
		Operation: tracer.DetectOperation(query),
		Duration:  elapsed,
		Error:     err,
	})
}

func (db *DB) succeed(span tracer.Span, h *Handle, query string, args []any, start time.Time, affected int64) {
	elapsed := time.Since(start)
	masked := db.sanitizer.MaskSQL(query)

	db.logger.Debug("statement executed",
		"alias", h.Alias(),
		"sql", masked,
		"params", db.sanitizer.FormatParams(db.sanitizer.MaskParams(query, args)),
		"duration_ms", elapsed.Milliseconds(),
		"rows_affected", affected,
	)
	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		SQL:          masked,
		Alias:        h.Alias(),
		Database:     h.Dialect().Name(),
		Operation:    tracer.DetectOperation(query),
		Duration:     elapsed,
		RowsAffected: affected,
	})
}

func (db *DB) rollback(h *Handle, tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		db.logger.Warn("rollback failed", "alias", h.Alias(), "error", err)
	}
}

// checkLost evicts h when err shows its connection is gone.
func (db *DB) checkLost(h *Handle, err error) {
	if !h.Dialect().IsConnectionLost(err) {
		return
	}
	db.logger.Warn("connection lost, evicting", "alias", h.Alias(), "error", err)
	db.registry.evict(h)
}
