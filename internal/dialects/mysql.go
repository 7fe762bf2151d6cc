package dialects

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQLDialect implements MySQL-specific behavior on top of go-sql-driver/mysql.
type MySQLDialect struct{}

// mysqlLostCodes are server and client error numbers after which the
// session is unusable.
var mysqlLostCodes = map[uint16]bool{
	1053: true, // ER_SERVER_SHUTDOWN
	1077: true, // ER_NORMAL_SHUTDOWN
	1078: true, // ER_GOT_SIGNAL
	1079: true, // ER_SHUTDOWN_COMPLETE
	1080: true, // ER_FORCING_CLOSE
	1152: true, // ER_ABORTING_CONNECTION
	1927: true, // ER_CONNECTION_KILLED
	2006: true, // CR_SERVER_GONE_ERROR
	2013: true, // CR_SERVER_LOST
	4031: true, // ER_CLIENT_INTERACTION_TIMEOUT
}

// Name returns "mysql".
func (d *MySQLDialect) Name() string {
	return "mysql"
}

// DataSourceName parses the endpoint as a MySQL DSN and sets the credentials on it.
func (d *MySQLDialect) DataSourceName(endpoint, user, secret string) (string, error) {
	cfg, err := mysql.ParseDSN(endpoint)
	if err != nil {
		return "", err
	}
	if user != "" {
		cfg.User = user
	}
	if secret != "" {
		cfg.Passwd = secret
	}
	return cfg.FormatDSN(), nil
}

// IsConnectionLost reports dropped sessions, killed connections and server shutdowns.
func (d *MySQLDialect) IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	if isBadConn(err) || errors.Is(err, mysql.ErrInvalidConn) || isNetworkLoss(err) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return mysqlLostCodes[me.Number]
	}
	return false
}

func init() {
	RegisterDialect("mysql", &MySQLDialect{})
}
