package source

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	defaultMySQLPort    = "3306"
	defaultMaxOpenConns = 4
	defaultConnLifetime = time.Hour
)

// MySQLConfig builds the driver configuration for creds. Dates and times
// are read as text so the pipeline sees the same values a snapshot holds.
func MySQLConfig(creds Credentials) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = creds.User
	cfg.Passwd = creds.Password
	cfg.Net = "tcp"
	cfg.Addr = creds.Host
	if _, _, err := net.SplitHostPort(creds.Host); err != nil {
		cfg.Addr = net.JoinHostPort(creds.Host, defaultMySQLPort)
	}
	cfg.DBName = creds.Database
	if cfg.DBName == "" {
		cfg.DBName = DefaultDatabase
	}
	cfg.ParseTime = false
	return cfg
}

// NewMySQL opens a source backed by the MySQL log database.
func NewMySQL(creds Credentials, logger *slog.Logger) (*SQLSource, error) {
	if creds.Host == "" {
		return nil, fmt.Errorf("mysql host is required")
	}

	connector, err := mysql.NewConnector(MySQLConfig(creds))
	if err != nil {
		return nil, fmt.Errorf("creating mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetConnMaxLifetime(defaultConnLifetime)

	return newSQLSource(db, logger), nil
}
