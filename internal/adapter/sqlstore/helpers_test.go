package sqlstore_test

import (
	"database/sql"

	"github.com/neomorfeo/circulation/internal/adapter/sqlstore"
)

func sqlOpen(dsn string) (*sql.DB, error) {
	return sql.Open(sqlstore.Postgres.DriverName(), dsn)
}
