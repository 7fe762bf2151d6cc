// Package dialects holds the engine-specific knowledge of the access layer:
// how credentials are merged into a driver DSN and which driver errors mean
// the connection behind an alias is gone for good.
package dialects

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"sync"
)

// Dialect defines database-specific behaviors.
type Dialect interface {
	// Name returns the database system name used in logs and spans.
	Name() string
	// DataSourceName merges credentials into the configured endpoint.
	DataSourceName(endpoint, user, secret string) (string, error)
	// IsConnectionLost reports whether err means the connection must be recreated.
	IsConnectionLost(err error) bool
}

var (
	mu       sync.RWMutex
	dialects = make(map[string]Dialect)
)

// RegisterDialect registers a database dialect by driver name.
func RegisterDialect(name string, d Dialect) {
	mu.Lock()
	dialects[name] = d
	mu.Unlock()
}

// LookupDialect retrieves a registered dialect by driver name.
func LookupDialect(name string) (Dialect, bool) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := dialects[name]
	return d, ok
}

// GetDialect retrieves a registered dialect, falling back to GenericDialect
// for drivers nobody registered.
func GetDialect(name string) Dialect {
	if d, ok := LookupDialect(name); ok {
		return d
	}
	return &GenericDialect{name: name}
}

// GenericDialect is used for drivers without a dedicated dialect.
// The endpoint is passed to the driver untouched.
type GenericDialect struct {
	name string
}

// Name returns the driver name.
func (d *GenericDialect) Name() string {
	return d.name
}

// DataSourceName returns endpoint unchanged.
func (d *GenericDialect) DataSourceName(endpoint, _, _ string) (string, error) {
	return endpoint, nil
}

// IsConnectionLost recognizes only the database/sql sentinels.
func (d *GenericDialect) IsConnectionLost(err error) bool {
	return isBadConn(err)
}

func isBadConn(err error) bool {
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone)
}

// isNetworkLoss covers drivers that surface a dropped socket as a plain I/O
// error. A cancelled or timed out context is a statement error: the
// connection stays usable.
func isNetworkLoss(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
