package db

import (
	"database/sql"

	libdb "termledger/backend/libs/db"
)

// NewPostgres returns the shared DB connection pool.
func NewPostgres(dsn string, maxOpenConns int) (*sql.DB, error) {
	return libdb.NewPostgresDB(dsn, libdb.PoolOptions{MaxOpenConns: maxOpenConns})
}
