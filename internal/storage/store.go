// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"time"

	"github.com/mmynk/settleup/internal/models"
)

// Store defines the interface for ledger storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, memory)
// without changing the service layer.
type Store interface {
	// CreateMember persists a member. The ID is generated when empty.
	CreateMember(ctx context.Context, member *models.Member) error

	// CreateGroup persists a group and its roster in one transaction.
	// Every roster member must already exist.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group with its roster in join order.
	// Returns a *models.NotFoundError if the group does not exist.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// CreateExpense persists an expense together with its obligations,
	// atomically. IDs and timestamps are filled in when empty.
	CreateExpense(ctx context.Context, expense *models.Expense) error

	// GetExpense retrieves an expense with its obligations.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// ListExpensesByGroup returns a group's expenses, newest first.
	ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error)

	// UpdateExpenseDetails changes the free-text fields of an expense.
	// Amount, payer and obligations are never updated.
	UpdateExpenseDetails(ctx context.Context, expenseID, description, category string) error

	// DeleteExpense removes an expense and its obligations.
	DeleteExpense(ctx context.Context, expenseID string) error

	// ListOpenShares returns every unsettled obligation in a group joined
	// with the payer of its expense.
	ListOpenShares(ctx context.Context, groupID string) ([]models.OpenShare, error)

	// GetSettlement retrieves a settlement by ID.
	GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error)

	// ListSettlementsByGroup returns a group's settlements, oldest first.
	ListSettlementsByGroup(ctx context.Context, groupID string) ([]*models.Settlement, error)

	// WithinTx runs fn inside one transaction. The transaction commits when
	// fn returns nil and rolls back otherwise; nothing fn wrote is visible
	// to other callers until commit.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Close releases any resources held by the store.
	Close() error
}

// Tx is the set of operations available inside Store.WithinTx.
type Tx interface {
	// ListOpenShares is Store.ListOpenShares inside the transaction. Backends
	// that support row locks hold them on the returned obligations until
	// the transaction ends.
	ListOpenShares(ctx context.Context, groupID string) ([]models.OpenShare, error)

	// MarkSettled flips the listed obligations to settled, recording the
	// counterparty and time. Only rows still unsettled are touched; the
	// returned count lets the caller detect a concurrent discharge.
	MarkSettled(ctx context.Context, obligationIDs []string, settledWith string, at time.Time) (int64, error)

	// CreateSettlement inserts the settlement audit record.
	CreateSettlement(ctx context.Context, settlement *models.Settlement) error
}
