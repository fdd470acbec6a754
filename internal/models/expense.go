package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/settleup/internal/money"
)

// SplitPolicy selects how an expense is divided among members.
type SplitPolicy string

const (
	// SplitEqual divides the amount evenly; leftover cents go to the first members.
	SplitEqual SplitPolicy = "equal"
	// SplitUnequal uses explicit per-member amounts.
	SplitUnequal SplitPolicy = "unequal"
	// SplitPercentage uses explicit per-member percentages summing to 100.
	SplitPercentage SplitPolicy = "percentage"
)

// ParseSplitPolicy validates a policy name.
func ParseSplitPolicy(s string) (SplitPolicy, error) {
	switch p := SplitPolicy(s); p {
	case SplitEqual, SplitUnequal, SplitPercentage:
		return p, nil
	default:
		return "", &ValidationError{Field: "split_policy", Reason: fmt.Sprintf("must be equal, unequal, or percentage (got %q)", s)}
	}
}

// Expense represents one payment made by a member on behalf of a group.
//
// Amount, policy and obligations are fixed at creation. Correcting a mistake
// means deleting the expense (which cascades to its obligations) and
// creating a new one.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string `json:"id"`

	// GroupID is the group the expense belongs to.
	GroupID string `json:"group_id"`

	// PaidBy is the member who paid.
	PaidBy string `json:"paid_by"`

	// Amount is the total paid.
	Amount money.Money `json:"amount"`

	// Policy is the split policy used to compute obligations.
	Policy SplitPolicy `json:"split_policy"`

	// Description is editable by the payer.
	Description string `json:"description"`

	// Category is editable by the payer (e.g., "food", "travel").
	Category string `json:"category"`

	// CreatedAt is when the expense was recorded.
	CreatedAt time.Time `json:"created_at"`

	// Obligations are the per-member shares, payer included.
	Obligations []Obligation `json:"obligations"`
}

// Obligation represents one member's owed share of one expense (a "split").
type Obligation struct {
	// ID is the unique identifier for the obligation (UUID format).
	ID string `json:"id"`

	// ExpenseID is the expense this share belongs to.
	ExpenseID string `json:"expense_id"`

	// OwedBy is the member who owes the share.
	OwedBy string `json:"owed_by"`

	// Amount is the owed share; never negative.
	Amount money.Money `json:"amount"`

	// Percentage is set for percentage splits only.
	Percentage decimal.NullDecimal `json:"percentage"`

	// Settled flips to true exactly once.
	Settled bool `json:"settled"`

	// SettledAt is when the share was discharged.
	SettledAt *time.Time `json:"settled_at,omitempty"`

	// SettledWith is the counterparty the share was settled with. For the
	// payer's own share this is the payer.
	SettledWith string `json:"settled_with,omitempty"`
}

// OpenShare is an unsettled obligation joined with the payer of its expense.
// It is the row shape the balance ledger folds over.
type OpenShare struct {
	ObligationID string
	ExpenseID    string
	Description  string
	OwedBy       string
	PaidBy       string
	Amount       money.Money
}
