// Package sqlstore implements storage.Store on database/sql. The SQLite and
// PostgreSQL backends share this code and differ only by Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/storage"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements storage.Store over an open *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps db. The schema must already be migrated.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB exposes the underlying pool for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithinTx runs fn in a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &txStore{q: tx, dialect: s.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore implements storage.Tx.
type txStore struct {
	q       querier
	dialect Dialect
}

func (t *txStore) ListOpenShares(ctx context.Context, groupID string) ([]models.OpenShare, error) {
	return listOpenShares(ctx, t.q, t.dialect, groupID, t.dialect.LockOpenShares)
}

func (t *txStore) MarkSettled(ctx context.Context, obligationIDs []string, settledWith string, at time.Time) (int64, error) {
	if len(obligationIDs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(obligationIDs)+4)
	args = append(args, true, toMillis(at), settledWith, false)
	for _, id := range obligationIDs {
		args = append(args, id)
	}
	query := `UPDATE obligations SET settled = ?, settled_at = ?, settled_with = ?
		WHERE settled = ? AND id IN (` + placeholders(len(obligationIDs)) + `)`

	res, err := t.q.ExecContext(ctx, t.dialect.rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark obligations settled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count settled obligations: %w", err)
	}
	return n, nil
}

func (t *txStore) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	return createSettlement(ctx, t.q, t.dialect, settlement)
}

// Timestamps are stored as Unix milliseconds so both dialects share one
// column type.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
