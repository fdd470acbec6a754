// Package postgres provides a PostgreSQL-backed implementation of the
// storage.Store interface using the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mmynk/settleup/internal/storage"
	"github.com/mmynk/settleup/internal/storage/migrations"
	"github.com/mmynk/settleup/internal/storage/sqlstore"
)

// Ensure PostgresStore implements storage.Store
var _ storage.Store = (*PostgresStore)(nil)

// PostgresStore implements storage.Store using PostgreSQL.
type PostgresStore struct {
	*sqlstore.Store
}

// Open connects to dsn, runs migrations and tunes the pool.
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	if err := migrations.Up(migrations.Postgres, "pgx", dsn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewWithDB(db), nil
}

// NewWithDB wraps an already migrated database.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{Store: sqlstore.New(db, sqlstore.Postgres)}
}
