// Package db provides database connection management, migrations and the rule store.
//
// Supports SQLite (development, single node) and PostgreSQL (shared deployments) via sqlx.
// Migrations are embedded SQL files applied by a small checksum-verifying runner; queries are
// named statements loaded with dotsql and rebound per driver.
package db

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Connection pool limits for PostgreSQL. SQLite is capped to a single writer.
const (
	maxOpenConns    = 16
	maxIdleConns    = 4
	connMaxIdleTime = 5 * time.Minute
	connMaxLifetime = 30 * time.Minute
)

// Open establishes a database connection from a URL and configures connection pooling.
// Supported URL schemes: sqlite://, postgres:// (postgresql:// accepted).
// SQLite URLs: sqlite://path/to/file.db or sqlite:///absolute/path; foreign keys are
// switched on unless the URL sets its own query parameters.
func Open(ctx context.Context, dbURL string) (*sqlx.DB, error) {
	driverName, dataSource, err := parseURL(dbURL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driverName, dataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driverName == "sqlite3" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxIdleConns)
	}
	db.SetConnMaxIdleTime(connMaxIdleTime)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// parseURL maps a database URL to a driver name and data source.
func parseURL(dbURL string) (driverName, dataSource string, err error) {
	if dbURL == "" {
		return "", "", fmt.Errorf("database URL required (sqlite://path or postgres://...)")
	}
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid database URL: %w", err)
	}

	switch u.Scheme {
	case "sqlite":
		// sqlite://file.db carries the path in host+path, sqlite:///abs/path in path only
		dataSource = u.Host + u.Path
		if dataSource == "" {
			return "", "", fmt.Errorf("sqlite URL missing path: %s", dbURL)
		}
		if u.RawQuery != "" {
			dataSource += "?" + u.RawQuery
		} else {
			dataSource += "?_foreign_keys=on"
		}
		return "sqlite3", dataSource, nil
	case "postgres", "postgresql":
		return "postgres", dbURL, nil
	default:
		return "", "", fmt.Errorf("unsupported database scheme: %s (expected sqlite or postgres)", u.Scheme)
	}
}
