//go:build integration
// +build integration

package test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	mysqlmodule "github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)

	"github.com/coregx/dbfactory"
)

// DatabaseSetup encapsulates a facade over one alias and its cleanup.
type DatabaseSetup struct {
	DB        *dbfactory.DB
	Alias     string
	Container testcontainers.Container
	Dialect   string
}

// Close shuts the registry down and stops the container.
func (ds *DatabaseSetup) Close() {
	if ds.DB != nil {
		ds.DB.Registry().Shutdown() //nolint:errcheck
	}
	if ds.Container != nil {
		ds.Container.Terminate(context.Background()) //nolint:errcheck
	}
}

func newSetup(cfg dbfactory.Config, container testcontainers.Container) *DatabaseSetup {
	store := dbfactory.NewConfigStore(cfg)
	registry := dbfactory.NewRegistry(store, dbfactory.WithRetryInterval(5*time.Second))
	return &DatabaseSetup{
		DB:        dbfactory.New(registry),
		Alias:     cfg.Alias,
		Container: container,
		Dialect:   cfg.Driver,
	}
}

// SetupPostgreSQLTestDB creates a PostgreSQL alias.
// Uses testcontainers if available, falls back to POSTGRES_TEST_URL.
// Credentials are kept out of the endpoint so the dialect merges them in.
func SetupPostgreSQLTestDB(t *testing.T) *DatabaseSetup {
	ctx := context.Background()

	if url := os.Getenv("POSTGRES_TEST_URL"); url != "" {
		return newSetup(dbfactory.Config{
			Alias:    "pg",
			Driver:   "postgres",
			Endpoint: url,
			User:     os.Getenv("POSTGRES_TEST_USER"),
			Secret:   os.Getenv("POSTGRES_TEST_PASSWORD"),
		}, nil)
	}

	pgContainer, err := postgres.Run(
		ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skip("Docker not available for PostgreSQL integration tests: " + err.Error())
	}

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return newSetup(dbfactory.Config{
		Alias:    "pg",
		Driver:   "postgres",
		Endpoint: fmt.Sprintf("postgres://%s:%s/testdb?sslmode=disable", host, port.Port()),
		User:     "user",
		Secret:   "password",
	}, pgContainer)
}

// SetupMySQLTestDB creates a MySQL alias.
// Uses testcontainers if available, falls back to MYSQL_TEST_DSN.
func SetupMySQLTestDB(t *testing.T) *DatabaseSetup {
	ctx := context.Background()

	if dsn := os.Getenv("MYSQL_TEST_DSN"); dsn != "" {
		return newSetup(mysqlConfig(t, dsn), nil)
	}

	mysqlContainer, err := mysqlmodule.Run(
		ctx,
		"mysql:8.0",
		mysqlmodule.WithDatabase("testdb"),
		mysqlmodule.WithUsername("user"),
		mysqlmodule.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("port: 3306  MySQL Community Server").
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skip("Docker not available for MySQL integration tests: " + err.Error())
	}

	dsn, err := mysqlContainer.ConnectionString(ctx)
	require.NoError(t, err)

	return newSetup(mysqlConfig(t, dsn), mysqlContainer)
}

// mysqlConfig moves the credentials of dsn into the config.
func mysqlConfig(t *testing.T, dsn string) dbfactory.Config {
	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)

	cfg := dbfactory.Config{
		Alias:  "my",
		Driver: "mysql",
		User:   parsed.User,
		Secret: parsed.Passwd,
	}
	parsed.User, parsed.Passwd = "", ""
	cfg.Endpoint = parsed.FormatDSN()
	return cfg
}

// SetupSQLiteTestDB creates an in-memory SQLite alias.
// Always works, no external dependencies.
func SetupSQLiteTestDB(t *testing.T) *DatabaseSetup {
	return newSetup(dbfactory.Config{Alias: "lite", Driver: "sqlite", Endpoint: ":memory:"}, nil)
}

// CreateMessagesTable creates the messages table.
func CreateMessagesTable(t *testing.T, ds *DatabaseSetup) {
	var createSQL string

	switch ds.Dialect {
	case "postgres":
		createSQL = `
			CREATE TABLE IF NOT EXISTS messages (
				id INTEGER PRIMARY KEY,
				mailbox_id INTEGER NOT NULL,
				subject TEXT,
				size INTEGER DEFAULT 0,
				created_at TIMESTAMP
			)
		`
	case "mysql":
		createSQL = `
			CREATE TABLE IF NOT EXISTS messages (
				id INT PRIMARY KEY,
				mailbox_id INT NOT NULL,
				subject TEXT,
				size INT DEFAULT 0,
				created_at DATETIME NULL
			)
		`
	default:
		createSQL = `
			CREATE TABLE IF NOT EXISTS messages (
				id INTEGER PRIMARY KEY,
				mailbox_id INTEGER NOT NULL,
				subject TEXT,
				size INTEGER DEFAULT 0,
				created_at TEXT
			)
		`
	}

	rs := ds.DB.Update(context.Background(), ds.Alias, createSQL)
	require.True(t, rs.Valid(), "create messages: %v", rs.Err())
}
