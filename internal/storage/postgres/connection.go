package postgres

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// NewConnection exposes pool as a *sql.DB for repositories written against
// database/sql. Closing the returned DB does not close the pool.
func NewConnection(pool *pgxpool.Pool) *sql.DB {
	db := stdlib.OpenDBFromPool(pool)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return db
}
