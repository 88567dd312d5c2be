package otel

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OpenDB opens a database with OpenTelemetry instrumentation. driverName is
// "sqlite" or "pgx". The returned *sql.DB has automatic tracing for all SQL
// operations and metrics for the connection pool.
func OpenDB(driverName, dataSourceName string) (*sql.DB, error) {
	var system attribute.KeyValue
	switch driverName {
	case "sqlite":
		system = semconv.DBSystemSqlite
	case "pgx":
		system = semconv.DBSystemPostgreSQL
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driverName)
	}

	db, err := otelsql.Open(driverName, dataSourceName,
		otelsql.WithAttributes(system),
	)
	if err != nil {
		return nil, fmt.Errorf("opening instrumented database: %w", err)
	}

	if driverName == "sqlite" {
		if err := configureSQLite(db); err != nil {
			return nil, err
		}
	} else {
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(time.Hour)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	if _, err := otelsql.RegisterDBStatsMetrics(db,
		otelsql.WithAttributes(system),
	); err != nil {
		return nil, fmt.Errorf("registering db stats metrics: %w", err)
	}

	return db, nil
}

func configureSQLite(db *sql.DB) error {
	// SQLite performs best with a single connection when sharing the DB
	// with an embedded job queue (River). This avoids SQLITE_BUSY errors
	// and serializes circulation transactions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("enabling foreign keys: %w", err)
	}
	return nil
}
