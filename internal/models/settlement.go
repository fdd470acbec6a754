package models

import (
	"time"

	"github.com/mmynk/settleup/internal/money"
)

// Settlement records a settle-up between two group members.
// It is written once and never updated or deleted.
type Settlement struct {
	// ID is the unique identifier for the settlement (ULID, sorts by creation time).
	ID string `json:"id"`

	// GroupID is the group this settlement belongs to.
	GroupID string `json:"group_id"`

	// From is the member who paid (debtor settling up).
	From string `json:"from"`

	// To is the member who received payment (creditor being paid).
	To string `json:"to"`

	// Amount is the pairwise net that was discharged.
	Amount money.Money `json:"amount"`

	// Notes is an optional free-text description.
	Notes string `json:"notes,omitempty"`

	// SettledAt is when the settlement was recorded.
	SettledAt time.Time `json:"settled_at"`
}

// DischargeKind tells whether a discharged obligation was paid off or offset.
type DischargeKind string

const (
	// DischargePaid is an obligation the payer owed the receiver.
	DischargePaid DischargeKind = "paid"
	// DischargeOffset is an obligation the receiver owed the payer, cancelled
	// against the payment.
	DischargeOffset DischargeKind = "offset"
)

// Discharge is one obligation closed by a settlement.
type Discharge struct {
	ObligationID string        `json:"obligation_id"`
	ExpenseID    string        `json:"expense_id"`
	Description  string        `json:"description"`
	Amount       money.Money   `json:"amount"`
	Kind         DischargeKind `json:"kind"`
}
