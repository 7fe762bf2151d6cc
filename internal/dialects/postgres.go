package dialects

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// PostgresDialect implements PostgreSQL-specific behavior on top of lib/pq.
type PostgresDialect struct{}

func init() {
	RegisterDialect("postgres", &PostgresDialect{})
	RegisterDialect("postgresql", &PostgresDialect{})
}

// Name returns "postgres".
func (d *PostgresDialect) Name() string {
	return "postgres"
}

// DataSourceName converts URL endpoints to key/value form and appends the credentials.
func (d *PostgresDialect) DataSourceName(endpoint, user, secret string) (string, error) {
	dsn := endpoint
	if strings.HasPrefix(endpoint, "postgres://") || strings.HasPrefix(endpoint, "postgresql://") {
		converted, err := pq.ParseURL(endpoint)
		if err != nil {
			return "", err
		}
		dsn = converted
	}

	parts := []string{}
	if dsn != "" {
		parts = append(parts, dsn)
	}
	if user != "" {
		parts = append(parts, "user="+quoteValue(user))
	}
	if secret != "" {
		parts = append(parts, "password="+quoteValue(secret))
	}
	return strings.Join(parts, " "), nil
}

// quoteValue quotes a key/value connection string value the way lib/pq parses it.
func quoteValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// IsConnectionLost reports SQLSTATE class 08 and administrator/crash shutdowns.
func (d *PostgresDialect) IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	if isBadConn(err) || isNetworkLoss(err) {
		return true
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		if pe.Code.Class() == "08" {
			return true
		}
		switch pe.Code {
		case "57P01", "57P02", "57P03":
			return true
		}
	}
	return false
}
