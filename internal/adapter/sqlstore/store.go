package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // Register goqu dialect.
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // Register goqu dialect.
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/neomorfeo/circulation/internal/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver.
	_ "modernc.org/sqlite"             // Register SQLite driver.
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// Dialect selects the SQL flavour and locking strategy of a Store.
type Dialect string

const (
	// SQLite runs every transaction on a single connection, so
	// transactions are serialized as a whole.
	SQLite Dialect = "sqlite"
	// Postgres locks individual rows with SELECT ... FOR UPDATE.
	Postgres Dialect = "postgres"
)

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Dialect) gooseDialect() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite3"
}

func (d Dialect) goquDialect() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite3"
}

// sqlxDriverName picks the name sqlx uses to decide placeholder style.
func (d Dialect) sqlxDriverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite3"
}

// ParseDialect accepts "sqlite" or "postgres".
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(s)) {
	case SQLite:
		return SQLite, nil
	case Postgres:
		return Postgres, nil
	default:
		return "", fmt.Errorf("unknown store driver %q", s)
	}
}

// Compile-time check: Store implements domain.Store.
var _ domain.Store = (*Store)(nil)

// Store implements domain.Store on database/sql.
type Store struct {
	queries
	db     *sqlx.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for rollback failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New opens a SQLite database, runs migrations, and returns a ready store.
func New(dataSourceName string, opts ...Option) (*Store, error) {
	db, err := sql.Open(SQLite.DriverName(), dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection keeps ":memory:" a single database and serializes writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return NewFromDB(db, SQLite, opts...)
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready store.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB, dialect Dialect, opts ...Option) (*Store, error) {
	if err := runMigrations(db, dialect); err != nil {
		return nil, err
	}

	x := sqlx.NewDb(db, dialect.sqlxDriverName())
	s := &Store{
		queries: queries{
			ext:     x,
			builder: goqu.Dialect(dialect.goquDialect()),
			dialect: dialect,
		},
		db:     x,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other adapters (e.g., river).
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// Dialect reports which database the store runs on.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

func runMigrations(db *sql.DB, dialect Dialect) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect(dialect.gooseDialect()); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations/"+string(dialect)); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// WithinTx runs fn in a transaction. The transaction commits when fn returns
// nil and rolls back on error, panic or context cancellation.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			s.rollback(ctx, sqlTx)
			panic(p)
		}
		if err != nil {
			s.rollback(ctx, sqlTx)
		}
	}()

	if err = fn(ctx, &txStore{queries: s.with(sqlTx)}); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Store) rollback(ctx context.Context, tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.ErrorContext(ctx, "rolling back transaction", "error", err)
	}
}

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isCheckViolation checks if an error is a CHECK constraint violation.
func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}
