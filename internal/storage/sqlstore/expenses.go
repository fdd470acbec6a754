package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/settleup/internal/ids"
	"github.com/mmynk/settleup/internal/models"
)

const expenseColumns = "id, group_id, paid_by, amount, split_policy, description, category, created_at"

const obligationColumns = "o.id, o.expense_id, o.owed_by, o.amount, o.percentage, o.settled, o.settled_at, o.settled_with"

// CreateExpense persists an expense and its obligations in one transaction.
func (s *Store) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = ids.New()
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.dialect.rebind(
		"INSERT INTO expenses ("+expenseColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
		expense.ID, expense.GroupID, expense.PaidBy, expense.Amount, string(expense.Policy),
		expense.Description, expense.Category, toMillis(expense.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	for i := range expense.Obligations {
		o := &expense.Obligations[i]
		if o.ID == "" {
			o.ID = ids.New()
		}
		o.ExpenseID = expense.ID

		var settledAt sql.NullInt64
		var settledWith sql.NullString
		if o.Settled {
			if o.SettledAt == nil {
				at := expense.CreatedAt
				o.SettledAt = &at
			}
			settledAt = sql.NullInt64{Int64: toMillis(*o.SettledAt), Valid: true}
			settledWith = sql.NullString{String: o.SettledWith, Valid: o.SettledWith != ""}
		}

		_, err = tx.ExecContext(ctx, s.dialect.rebind(
			`INSERT INTO obligations (id, expense_id, owed_by, amount, percentage, settled, settled_at, settled_with, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			o.ID, o.ExpenseID, o.OwedBy, o.Amount, o.Percentage, o.Settled, settledAt, settledWith, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert obligation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetExpense retrieves an expense and its obligations.
func (s *Store) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ?"),
		expenseID,
	)
	expense, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "expense", ID: expenseID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		"SELECT "+obligationColumns+" FROM obligations o WHERE o.expense_id = ? ORDER BY o.position"),
		expenseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get obligations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		expense.Obligations = append(expense.Obligations, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate obligations: %w", err)
	}

	return expense, nil
}

// ListExpensesByGroup retrieves all expenses for a group, newest first.
func (s *Store) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		"SELECT "+expenseColumns+" FROM expenses WHERE group_id = ? ORDER BY created_at DESC, id"),
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses by group: %w", err)
	}
	defer rows.Close()

	var expenses []*models.Expense
	byID := make(map[string]*models.Expense)
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
		byID[expense.ID] = expense
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}
	if len(expenses) == 0 {
		return expenses, nil
	}

	// Load every obligation of the group in one query instead of one per expense.
	oblRows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT `+obligationColumns+`
		 FROM obligations o JOIN expenses e ON e.id = o.expense_id
		 WHERE e.group_id = ? ORDER BY o.expense_id, o.position`),
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list obligations by group: %w", err)
	}
	defer oblRows.Close()

	for oblRows.Next() {
		o, err := scanObligation(oblRows)
		if err != nil {
			return nil, err
		}
		if expense, ok := byID[o.ExpenseID]; ok {
			expense.Obligations = append(expense.Obligations, o)
		}
	}
	if err := oblRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate obligations: %w", err)
	}

	return expenses, nil
}

// UpdateExpenseDetails updates the description and category of an expense.
func (s *Store) UpdateExpenseDetails(ctx context.Context, expenseID, description, category string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		"UPDATE expenses SET description = ?, category = ? WHERE id = ?"),
		description, category, expenseID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated expense: %w", err)
	}
	if n == 0 {
		return &models.NotFoundError{Kind: "expense", ID: expenseID}
	}
	return nil
}

// DeleteExpense removes an expense. Obligations go with it.
func (s *Store) DeleteExpense(ctx context.Context, expenseID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.dialect.rebind(
		"DELETE FROM obligations WHERE expense_id = ?"), expenseID); err != nil {
		return fmt.Errorf("failed to delete obligations: %w", err)
	}

	res, err := tx.ExecContext(ctx, s.dialect.rebind("DELETE FROM expenses WHERE id = ?"), expenseID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted expense: %w", err)
	}
	if n == 0 {
		return &models.NotFoundError{Kind: "expense", ID: expenseID}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListOpenShares returns the group's unsettled obligations.
func (s *Store) ListOpenShares(ctx context.Context, groupID string) ([]models.OpenShare, error) {
	return listOpenShares(ctx, s.db, s.dialect, groupID, false)
}

func listOpenShares(ctx context.Context, q querier, d Dialect, groupID string, lock bool) ([]models.OpenShare, error) {
	query := `SELECT o.id, o.expense_id, e.description, o.owed_by, e.paid_by, o.amount
		FROM obligations o JOIN expenses e ON e.id = o.expense_id
		WHERE e.group_id = ? AND o.settled = ?
		ORDER BY e.created_at, e.id, o.position`
	if lock {
		query += " FOR UPDATE OF o"
	}

	rows, err := q.QueryContext(ctx, d.rebind(query), groupID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list open shares: %w", err)
	}
	defer rows.Close()

	var shares []models.OpenShare
	for rows.Next() {
		var sh models.OpenShare
		if err := rows.Scan(&sh.ObligationID, &sh.ExpenseID, &sh.Description, &sh.OwedBy, &sh.PaidBy, &sh.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan open share: %w", err)
		}
		shares = append(shares, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate open shares: %w", err)
	}
	return shares, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(r rowScanner) (*models.Expense, error) {
	expense := &models.Expense{}
	var policy string
	var createdAt int64
	if err := r.Scan(&expense.ID, &expense.GroupID, &expense.PaidBy, &expense.Amount, &policy,
		&expense.Description, &expense.Category, &createdAt); err != nil {
		return nil, err
	}
	expense.Policy = models.SplitPolicy(policy)
	expense.CreatedAt = fromMillis(createdAt)
	return expense, nil
}

func scanObligation(r rowScanner) (models.Obligation, error) {
	var (
		o           models.Obligation
		pct         decimal.NullDecimal
		settledAt   sql.NullInt64
		settledWith sql.NullString
	)
	if err := r.Scan(&o.ID, &o.ExpenseID, &o.OwedBy, &o.Amount, &pct, &o.Settled, &settledAt, &settledWith); err != nil {
		return models.Obligation{}, fmt.Errorf("failed to scan obligation: %w", err)
	}
	o.Percentage = pct
	if settledAt.Valid {
		at := fromMillis(settledAt.Int64)
		o.SettledAt = &at
	}
	o.SettledWith = settledWith.String
	return o, nil
}
