package rpc

import (
	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
)

type CreateMemberRequest struct {
	DisplayName string `json:"display_name"`
}

// CreateMemberResponse carries a bearer token for the new member.
type CreateMemberResponse struct {
	Member *models.Member `json:"member"`
	Token  string         `json:"token"`
}

type CreateGroupRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

type GetGroupRequest struct {
	GroupID string `json:"group_id"`
}

type GroupResponse struct {
	Group *models.Group `json:"group"`
}

// CreateExpenseRequest records an expense. PaidBy defaults to the caller.
type CreateExpenseRequest struct {
	GroupID      string             `json:"group_id"`
	PaidBy       string             `json:"paid_by,omitempty"`
	Amount       money.Money        `json:"amount"`
	SplitPolicy  models.SplitPolicy `json:"split_policy"`
	Description  string             `json:"description,omitempty"`
	Category     string             `json:"category,omitempty"`
	Participants []string           `json:"participants,omitempty"`
	Shares       []calculator.Share `json:"shares,omitempty"`
}

type GetExpenseRequest struct {
	ExpenseID string `json:"expense_id"`
}

type ExpenseResponse struct {
	Expense *models.Expense `json:"expense"`
}

type ListExpensesRequest struct {
	GroupID string `json:"group_id"`
}

type ListExpensesResponse struct {
	Expenses []*models.Expense `json:"expenses"`
}

type UpdateExpenseRequest struct {
	ExpenseID   string `json:"expense_id"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type DeleteExpenseRequest struct {
	ExpenseID string `json:"expense_id"`
}

type DeleteExpenseResponse struct{}

// NetBalanceRequest asks for one member's net. MemberID defaults to the caller.
type NetBalanceRequest struct {
	GroupID  string `json:"group_id"`
	MemberID string `json:"member_id,omitempty"`
}

type NetBalanceResponse struct {
	MemberID string      `json:"member_id"`
	Net      money.Money `json:"net"`
}

// PairwiseNetRequest asks what A owes B. A defaults to the caller.
type PairwiseNetRequest struct {
	GroupID string `json:"group_id"`
	A       string `json:"a,omitempty"`
	B       string `json:"b"`
}

type PairwiseNetResponse struct {
	A   string      `json:"a"`
	B   string      `json:"b"`
	Net money.Money `json:"net"`
}

// MemberRequest names a member of a group. MemberID defaults to the caller.
type MemberRequest struct {
	GroupID  string `json:"group_id"`
	MemberID string `json:"member_id,omitempty"`
}

// SettleRequest settles the caller's debt to To.
type SettleRequest struct {
	GroupID string      `json:"group_id"`
	To      string      `json:"to"`
	Amount  money.Money `json:"amount"`
	Notes   string      `json:"notes,omitempty"`
}

type ListSettlementsRequest struct {
	GroupID string `json:"group_id"`
}

type ListSettlementsResponse struct {
	Settlements []*models.Settlement `json:"settlements"`
}

type SuggestRequest struct {
	GroupID string `json:"group_id"`
}

type SuggestResponse struct {
	Transfers []calculator.Transfer `json:"transfers"`
}
