package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/events"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
)

// CreateExpenseRequest describes a payment to record.
type CreateExpenseRequest struct {
	GroupID     string
	PaidBy      string
	Amount      money.Money
	Policy      models.SplitPolicy
	Description string
	Category    string

	// Participants narrows an equal split; empty means the whole roster.
	Participants []string

	// Shares carries amounts (unequal) or percentages (percentage).
	Shares []calculator.Share
}

// CreateExpense splits an expense across the group and persists it with its
// obligations in one transaction.
func (s *LedgerService) CreateExpense(ctx context.Context, req CreateExpenseRequest) (*models.Expense, error) {
	slog.InfoContext(ctx, "CreateExpense request received",
		"group_id", req.GroupID,
		"paid_by", req.PaidBy,
		"amount", req.Amount.String(),
		"policy", req.Policy,
	)

	policy, err := models.ParseSplitPolicy(string(req.Policy))
	if err != nil {
		return nil, err
	}

	group, err := s.store.GetGroup(ctx, req.GroupID)
	if err != nil {
		slog.ErrorContext(ctx, "CreateExpense failed - group not found", "group_id", req.GroupID, "error", err)
		return nil, err
	}

	obligations, err := calculator.CalculateSplit(calculator.SplitRequest{
		Amount:       req.Amount,
		PaidBy:       req.PaidBy,
		Policy:       policy,
		Roster:       group.MemberIDs(),
		Participants: req.Participants,
		Shares:       req.Shares,
	})
	if err != nil {
		slog.WarnContext(ctx, "CreateExpense rejected", "group_id", req.GroupID, "error", err)
		return nil, err
	}

	now := s.now()
	for i := range obligations {
		if obligations[i].Settled {
			at := now
			obligations[i].SettledAt = &at
		}
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = generateDescription(group, req.PaidBy, policy)
	}

	expense := &models.Expense{
		GroupID:     group.ID,
		PaidBy:      req.PaidBy,
		Amount:      req.Amount,
		Policy:      policy,
		Description: description,
		Category:    strings.TrimSpace(req.Category),
		CreatedAt:   now,
		Obligations: obligations,
	}
	if err := s.store.CreateExpense(ctx, expense); err != nil {
		slog.ErrorContext(ctx, "CreateExpense failed", "group_id", req.GroupID, "error", err)
		return nil, asAtomicity("create expense", err)
	}

	slog.InfoContext(ctx, "Expense created",
		"expense_id", expense.ID,
		"group_id", expense.GroupID,
		"obligations", len(expense.Obligations),
	)
	s.metrics.ExpenseCreated()
	s.publish(ctx, &events.Message{
		Type:      events.ExpenseCreated,
		GroupID:   expense.GroupID,
		ExpenseID: expense.ID,
		From:      expense.PaidBy,
		Amount:    expense.Amount,
		Timestamp: now,
	})
	return expense, nil
}

// GetExpense returns an expense with its obligations.
func (s *LedgerService) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	return s.store.GetExpense(ctx, expenseID)
}

// ListExpenses returns a group's expenses, newest first.
func (s *LedgerService) ListExpenses(ctx context.Context, groupID string) ([]*models.Expense, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	expenses, err := s.store.ListExpensesByGroup(ctx, groupID)
	if err != nil {
		slog.ErrorContext(ctx, "ListExpenses failed", "group_id", groupID, "error", err)
		return nil, err
	}
	return expenses, nil
}

// UpdateExpenseDetails edits the description and category. Only the payer may
// edit; amount, payer and split stay fixed.
func (s *LedgerService) UpdateExpenseDetails(ctx context.Context, callerID, expenseID, description, category string) (*models.Expense, error) {
	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if expense.PaidBy != callerID {
		return nil, &models.PermissionError{MemberID: callerID, Action: "edit expense " + expenseID}
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, &models.ValidationError{Field: "description", Reason: "is required"}
	}

	if err := s.store.UpdateExpenseDetails(ctx, expenseID, description, strings.TrimSpace(category)); err != nil {
		slog.ErrorContext(ctx, "UpdateExpenseDetails failed", "expense_id", expenseID, "error", err)
		return nil, err
	}
	slog.InfoContext(ctx, "Expense updated", "expense_id", expenseID)
	return s.store.GetExpense(ctx, expenseID)
}

// DeleteExpense removes an expense and its obligations. Only the payer may
// delete.
func (s *LedgerService) DeleteExpense(ctx context.Context, callerID, expenseID string) error {
	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	if expense.PaidBy != callerID {
		return &models.PermissionError{MemberID: callerID, Action: "delete expense " + expenseID}
	}

	if err := s.store.DeleteExpense(ctx, expenseID); err != nil {
		slog.ErrorContext(ctx, "DeleteExpense failed", "expense_id", expenseID, "error", err)
		return asAtomicity("delete expense", err)
	}

	slog.InfoContext(ctx, "Expense deleted", "expense_id", expenseID, "group_id", expense.GroupID)
	s.metrics.ExpenseDeleted()
	s.publish(ctx, &events.Message{
		Type:      events.ExpenseDeleted,
		GroupID:   expense.GroupID,
		ExpenseID: expense.ID,
		From:      expense.PaidBy,
		Amount:    expense.Amount,
		Timestamp: s.now(),
	})
	return nil
}

// generateDescription names an expense recorded without a description.
func generateDescription(group *models.Group, paidBy string, policy models.SplitPolicy) string {
	payer := paidBy
	if m, ok := group.Member(paidBy); ok && m.DisplayName != "" {
		payer = m.DisplayName
	}
	return fmt.Sprintf("%s split (%s) paid by %s", group.Name, policy, payer)
}
