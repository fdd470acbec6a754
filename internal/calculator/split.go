package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
)

var hundredPercent = decimal.NewFromInt(100)

// percentTolerance is how far percentages may drift from 100.
var percentTolerance = decimal.RequireFromString("0.01")

// Share is one caller-supplied entry of an unequal or percentage split.
type Share struct {
	MemberID   string          `json:"member_id"`
	Amount     money.Money     `json:"amount"`     // unequal splits
	Percentage decimal.Decimal `json:"percentage"` // percentage splits
}

// SplitRequest describes an expense to divide.
type SplitRequest struct {
	Amount money.Money
	PaidBy string
	Policy models.SplitPolicy

	// Roster is the group roster in join order.
	Roster []string

	// Participants narrows an equal split to a subset of the roster.
	// Empty means everyone on the roster.
	Participants []string

	// Shares carries explicit amounts or percentages.
	Shares []Share
}

// CalculateSplit computes the obligations for one expense.
//
// Algorithm:
//   - equal: integer division in minor units, remainder cents handed one at
//     a time to the first participants in roster order
//   - unequal: explicit amounts, accepted when they sum to the total within one cent
//   - percentage: amount × pct / 100 rounded half-up, then leftover cents
//     handed to the first shares so the sum is exact
//
// Zero shares are dropped. The payer's own share is returned already settled.
// The returned obligations carry no IDs; the store assigns them.
func CalculateSplit(req SplitRequest) ([]models.Obligation, error) {
	if !req.Amount.IsPositive() {
		return nil, &models.ValidationError{Field: "amount", Reason: "must be greater than 0"}
	}
	if len(req.Roster) == 0 {
		return nil, &models.ValidationError{Field: "roster", Reason: "group has no members"}
	}
	roster := make(map[string]bool, len(req.Roster))
	for _, id := range req.Roster {
		roster[id] = true
	}
	if !roster[req.PaidBy] {
		return nil, &models.ValidationError{Field: "paid_by", Reason: fmt.Sprintf("member %q is not in the group", req.PaidBy)}
	}

	var (
		members []string
		amounts []money.Money
		pcts    []decimal.Decimal
		err     error
	)
	switch req.Policy {
	case models.SplitEqual:
		members, amounts, err = splitEqual(req, roster)
	case models.SplitUnequal:
		members, amounts, err = splitUnequal(req, roster)
	case models.SplitPercentage:
		members, amounts, pcts, err = splitPercentage(req, roster)
	default:
		_, err = models.ParseSplitPolicy(string(req.Policy))
	}
	if err != nil {
		return nil, err
	}

	obligations := make([]models.Obligation, 0, len(members))
	for i, member := range members {
		if amounts[i].IsZero() {
			continue
		}
		o := models.Obligation{
			OwedBy: member,
			Amount: amounts[i],
		}
		if pcts != nil {
			o.Percentage = decimal.NewNullDecimal(pcts[i])
		}
		if member == req.PaidBy {
			o.Settled = true
			o.SettledWith = req.PaidBy
		}
		obligations = append(obligations, o)
	}
	return obligations, nil
}

func splitEqual(req SplitRequest, roster map[string]bool) ([]string, []money.Money, error) {
	members := req.Roster
	if len(req.Participants) > 0 {
		if err := checkMembers(req.Participants, roster, "participants"); err != nil {
			return nil, nil, err
		}
		members = req.Participants
	}
	return members, req.Amount.Allocate(len(members)), nil
}

func splitUnequal(req SplitRequest, roster map[string]bool) ([]string, []money.Money, error) {
	if len(req.Shares) == 0 {
		return nil, nil, &models.ValidationError{Field: "shares", Reason: "required for unequal split"}
	}
	members := make([]string, len(req.Shares))
	amounts := make([]money.Money, len(req.Shares))
	var total money.Money
	for i, s := range req.Shares {
		if s.Amount.IsNegative() {
			return nil, nil, &models.ValidationError{Field: "shares", Reason: fmt.Sprintf("amount for %q cannot be negative", s.MemberID)}
		}
		if s.Amount.Sub(req.Amount).Cmp(money.Cent) > 0 {
			return nil, nil, &models.ValidationError{Field: "shares", Reason: fmt.Sprintf("amount for %q exceeds the total (%s)", s.MemberID, req.Amount)}
		}
		members[i] = s.MemberID
		amounts[i] = s.Amount
		var ok bool
		if total, ok = total.AddChecked(s.Amount); !ok {
			return nil, nil, &models.ValidationError{Field: "shares", Reason: "split amounts overflow"}
		}
	}
	if err := checkMembers(members, roster, "shares"); err != nil {
		return nil, nil, err
	}
	if !total.Within(req.Amount, money.Cent) {
		return nil, nil, &models.ValidationError{
			Field:  "shares",
			Reason: fmt.Sprintf("split amounts (%s) must equal total amount (%s)", total, req.Amount),
		}
	}
	return members, amounts, nil
}

func splitPercentage(req SplitRequest, roster map[string]bool) ([]string, []money.Money, []decimal.Decimal, error) {
	if len(req.Shares) == 0 {
		return nil, nil, nil, &models.ValidationError{Field: "shares", Reason: "required for percentage split"}
	}
	members := make([]string, len(req.Shares))
	pcts := make([]decimal.Decimal, len(req.Shares))
	total := decimal.Zero
	for i, s := range req.Shares {
		if s.Percentage.IsNegative() || s.Percentage.GreaterThan(hundredPercent) {
			return nil, nil, nil, &models.ValidationError{Field: "shares", Reason: fmt.Sprintf("percentage for %q must be between 0 and 100", s.MemberID)}
		}
		members[i] = s.MemberID
		pcts[i] = s.Percentage
		total = total.Add(s.Percentage)
	}
	if err := checkMembers(members, roster, "shares"); err != nil {
		return nil, nil, nil, err
	}
	if total.Sub(hundredPercent).Abs().GreaterThan(percentTolerance) {
		return nil, nil, nil, &models.ValidationError{
			Field:  "shares",
			Reason: fmt.Sprintf("percentages must add up to 100 (got %s)", total.String()),
		}
	}

	amounts := make([]money.Money, len(pcts))
	var sum money.Money
	for i, p := range pcts {
		share, err := req.Amount.Percent(p)
		if err != nil {
			return nil, nil, nil, &models.ValidationError{Field: "amount", Reason: err.Error()}
		}
		amounts[i] = share
		var ok bool
		if sum, ok = sum.AddChecked(share); !ok {
			return nil, nil, nil, &models.ValidationError{Field: "amount", Reason: money.ErrOutOfRange.Error()}
		}
	}
	distributeResidual(amounts, req.Amount.Sub(sum))
	return members, amounts, pcts, nil
}

// distributeResidual nudges amounts one cent at a time, first entries
// first, until they absorb residual. Entries that would go negative are
// skipped.
func distributeResidual(amounts []money.Money, residual money.Money) {
	step := money.Cent
	if residual.IsNegative() {
		step = step.Neg()
	}
	for !residual.IsZero() {
		moved := false
		for i := range amounts {
			if residual.IsZero() {
				break
			}
			next := amounts[i].Add(step)
			if next.IsNegative() || (amounts[i].IsZero() && step.IsPositive()) {
				continue
			}
			amounts[i] = next
			residual = residual.Sub(step)
			moved = true
		}
		if !moved {
			return
		}
	}
}

// checkMembers rejects duplicates and IDs missing from the roster.
func checkMembers(ids []string, roster map[string]bool, field string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !roster[id] {
			return &models.ValidationError{Field: field, Reason: fmt.Sprintf("member %q is not in the group", id)}
		}
		if seen[id] {
			return &models.ValidationError{Field: field, Reason: fmt.Sprintf("member %q listed more than once", id)}
		}
		seen[id] = true
	}
	return nil
}
