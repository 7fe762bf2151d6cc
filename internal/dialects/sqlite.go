package dialects

import (
	"fmt"
	"sync/atomic"

	// Registers the cgo "sqlite3" driver.
	_ "github.com/mattn/go-sqlite3"
)

// memoryEndpoint is SQLite's private in-memory database. Every pooled
// connection opening it would see a different, empty database.
const memoryEndpoint = ":memory:"

var memorySeq atomic.Uint64

// SQLiteDialect implements SQLite-specific behavior.
// SQLite has no credentials and no network session to lose.
type SQLiteDialect struct{}

func init() {
	RegisterDialect("sqlite", &SQLiteDialect{})
	RegisterDialect("sqlite3", &SQLiteDialect{})
}

// Name returns "sqlite".
func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

// DataSourceName returns the endpoint (a file path or URI) unchanged, except
// for ":memory:", which becomes a uniquely named shared-cache memory
// database so all connections of one pool see the same data.
func (d *SQLiteDialect) DataSourceName(endpoint, _, _ string) (string, error) {
	if endpoint == memoryEndpoint {
		return fmt.Sprintf("file:dbfactory-mem-%d?mode=memory&cache=shared", memorySeq.Add(1)), nil
	}
	return endpoint, nil
}

// IsConnectionLost recognizes only the database/sql sentinels.
func (d *SQLiteDialect) IsConnectionLost(err error) bool {
	return isBadConn(err)
}
