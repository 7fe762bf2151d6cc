// Package dbfactory is a process-local database access layer: a registry of
// named, lazily (re)created connections, convention-based mapping between
// rows and records, and an unescaped SQL builder for INSERT, UPDATE and
// insert-or-update statements.
package dbfactory

import (
	"time"

	"github.com/coregx/dbfactory/internal/config"
	"github.com/coregx/dbfactory/internal/core"
	"github.com/coregx/dbfactory/internal/orm"
	"github.com/coregx/dbfactory/internal/sqlbuilder"
)

type (
	// DB runs statements against registry aliases and never returns
	// statement errors.
	DB = core.DB
	// Option is a functional option for configuring DB.
	Option = core.Option
	// RowSet is the scoped result of one Query or Update call.
	RowSet = core.RowSet
	// Registry caches one connection per alias.
	Registry = core.Registry
	// RegistryOption is a functional option for configuring Registry.
	RegistryOption = core.RegistryOption
	// RegistryStats describes the registry state.
	RegistryStats = core.RegistryStats
	// Handle is the live connection cached for one alias.
	Handle = core.Handle
	// Opener opens and verifies one connection.
	Opener = core.Opener

	// Config describes how to reach one database target.
	Config = config.Config
	// ConfigStore is an in-memory alias table.
	ConfigStore = config.Store

	// Schema describes how records of type T map to a table.
	Schema[T any] = orm.Schema[T]
	// Field describes one persisted field of T.
	Field[T any] = orm.Field[T]
	// FieldOption adjusts a field descriptor.
	FieldOption = orm.Option

	// Builder renders unescaped INSERT and UPDATE text.
	Builder = sqlbuilder.Unsafe
	// BatchInsert renders a multi-row INSERT.
	BatchInsert = sqlbuilder.BatchInsert
	// Upsert is the existence check, INSERT and UPDATE of an insert-or-update.
	Upsert = sqlbuilder.Upsert
)

// Re-export core functions.
var (
	New                = core.New
	NewRegistry        = core.NewRegistry
	OpenConnection     = core.OpenConnection
	WithLogger         = core.WithLogger
	WithTracer         = core.WithTracer
	WithSanitizer      = core.WithSanitizer
	WithWaitTimeout    = core.WithWaitTimeout
	WithRetryInterval  = core.WithRetryInterval
	WithScheduler      = core.WithScheduler
	WithOpener         = core.WithOpener
	WithClock          = core.WithClock
	WithTimer          = core.WithTimer
	WithRegistryLogger = core.WithRegistryLogger
	WithRegistryTracer = core.WithRegistryTracer
	WithHealthCheck    = core.WithHealthCheck

	NewConfigStore = config.NewStore
	LoadConfig     = config.Load
	ParseConfig    = config.Parse

	NewBuilder      = sqlbuilder.New
	NewBatchInsert  = sqlbuilder.NewBatchInsert
	DeleteStatement = sqlbuilder.Delete
	ColumnName      = orm.ColumnName

	// Field options.
	Column  = orm.Column
	Ignore  = orm.Ignore
	Numeric = orm.Numeric
	Quoted  = orm.Quoted
)

// Re-export errors.
var (
	ErrUnknownAlias   = core.ErrUnknownAlias
	ErrRegistryClosed = core.ErrRegistryClosed
	ErrNoResult       = core.ErrNoResult
	ErrNoColumn       = core.ErrNoColumn
)

// DefaultAlias is the alias used when none is configured.
const DefaultAlias = config.DefaultAlias

// Open loads the YAML configuration at path and returns a facade over a new
// registry for it.
func Open(path string, opts ...RegistryOption) (*DB, error) {
	store, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return core.New(core.NewRegistry(store, opts...)), nil
}

// NewSchema creates a schema for table with fields in declaration order.
func NewSchema[T any](table string, fields ...Field[T]) *Schema[T] {
	return orm.NewSchema(table, fields...)
}

// All reads every remaining row of rs through schema and closes rs.
func All[T any](rs *RowSet, schema *Schema[T]) ([]T, error) {
	return core.All(rs, schema)
}

// StringField describes a quoted string field.
func StringField[T any](name string, ref func(*T) *string, opts ...FieldOption) Field[T] {
	return orm.String(name, ref, opts...)
}

// Int64Field describes an unquoted int64 field.
func Int64Field[T any](name string, ref func(*T) *int64, opts ...FieldOption) Field[T] {
	return orm.Int64(name, ref, opts...)
}

// IntField describes an unquoted int field.
func IntField[T any](name string, ref func(*T) *int, opts ...FieldOption) Field[T] {
	return orm.Int(name, ref, opts...)
}

// Float64Field describes an unquoted float64 field.
func Float64Field[T any](name string, ref func(*T) *float64, opts ...FieldOption) Field[T] {
	return orm.Float64(name, ref, opts...)
}

// BoolField describes a bool field written as 1 or 0.
func BoolField[T any](name string, ref func(*T) *bool, opts ...FieldOption) Field[T] {
	return orm.Bool(name, ref, opts...)
}

// TimeField describes a quoted time field; the zero time is written as NULL.
func TimeField[T any](name string, ref func(*T) *time.Time, opts ...FieldOption) Field[T] {
	return orm.Time(name, ref, opts...)
}
