package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Driver names accepted by database/sql.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// DB wraps the audit database pool.
type DB struct {
	Client *sql.DB
	Driver string
}

// NewDB opens a Postgres pool through pgx's database/sql driver and pings
// it within ctx. The pool is returned even when the ping fails so callers
// can decide whether to continue degraded.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	db, err := sql.Open(DriverPostgres, connString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return &DB{Client: db, Driver: DriverPostgres}, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{Client: db, Driver: DriverPostgres}, nil
}

// Healthy verifies database connectivity.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying pool.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// Open picks the audit database by driver name: "sqlite" opens sqlitePath,
// anything else connects to Postgres at dsn.
func Open(ctx context.Context, driver, dsn, sqlitePath string) (*DB, error) {
	if driver == "sqlite" || driver == DriverSQLite {
		return NewSQLite(ctx, sqlitePath)
	}
	return NewDB(ctx, dsn)
}
