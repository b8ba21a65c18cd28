// Package dsn provides Data Source Name construction utilities for database connections.
package dsn

import (
	"fmt"
	"net/url"

	"github.com/authgate/authgate/internal/config"
)

const (
	defaultMySQLPort    = 3306
	defaultPostgresPort = 5432
)

// Create builds the Data Source Name of the configured gorm engine.
func Create(db config.DB) string {
	switch db.GormEngine {
	case "postgres":
		return Postgres(db)
	case "sqlite":
		return SQLite(db)
	default:
		return MySQL(db)
	}
}

// MySQL builds a go-sql-driver DSN, user:password@tcp(host:port)/name?extras.
func MySQL(db config.DB) string {
	port := db.Port
	if port == 0 {
		port = defaultMySQLPort
	}

	out := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
		db.User,
		db.Password,
		db.Host,
		port,
		db.Name,
	)

	if db.Extras != "" {
		out += "?" + db.Extras
	}

	return out
}

// Postgres builds a postgres:// connection URL, Extras is the query string.
func Postgres(db config.DB) string {
	port := db.Port
	if port == 0 {
		port = defaultPostgresPort
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.User, db.Password),
		Host:     fmt.Sprintf("%s:%d", db.Host, port),
		Path:     "/" + db.Name,
		RawQuery: db.Extras,
	}

	return u.String()
}

// SQLite returns the database file, an in-memory database when Path is empty.
func SQLite(db config.DB) string {
	if db.Path == "" {
		return ":memory:"
	}

	return db.Path
}
