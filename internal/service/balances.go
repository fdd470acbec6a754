package service

import (
	"context"
	"log/slog"

	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
)

// MemberSummary is one member's position in a group.
type MemberSummary struct {
	MemberID string                    `json:"member_id"`
	Net      money.Money               `json:"net"`
	OwedToMe money.Money               `json:"owed_to_me"`
	IOwe     money.Money               `json:"i_owe"`
	OweMe    []calculator.Counterparty `json:"owe_me"`
	IOweTo   []calculator.Counterparty `json:"i_owe_to"`
}

// MemberPositions lists a member's netted positions, split by direction.
// Every amount is positive.
type MemberPositions struct {
	MemberID      string                    `json:"member_id"`
	IOwe          []calculator.Counterparty `json:"i_owe"`
	OwesMe        []calculator.Counterparty `json:"owes_me"`
	TotalIOwe     money.Money               `json:"total_i_owe"`
	TotalOwedToMe money.Money               `json:"total_owed_to_me"`
}

// loadLedger fetches the roster and folds the group's open shares once.
func (s *LedgerService) loadLedger(ctx context.Context, groupID string) (*models.Group, *calculator.Ledger, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	shares, err := s.store.ListOpenShares(ctx, groupID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load open shares", "group_id", groupID, "error", err)
		return nil, nil, err
	}
	return group, calculator.NewLedger(shares), nil
}

// NetBalance returns what the group owes memberID (negative when the member
// owes the group).
func (s *LedgerService) NetBalance(ctx context.Context, groupID, memberID string) (money.Money, error) {
	group, ledger, err := s.loadLedger(ctx, groupID)
	if err != nil {
		return money.Zero, err
	}
	if err := requireMember(group, memberID); err != nil {
		return money.Zero, err
	}
	return ledger.Net(memberID), nil
}

// PairwiseNet returns what a owes b net of what b owes a.
func (s *LedgerService) PairwiseNet(ctx context.Context, groupID, a, b string) (money.Money, error) {
	group, ledger, err := s.loadLedger(ctx, groupID)
	if err != nil {
		return money.Zero, err
	}
	if err := requireMember(group, a); err != nil {
		return money.Zero, err
	}
	if err := requireMember(group, b); err != nil {
		return money.Zero, err
	}
	return ledger.Pairwise(a, b), nil
}

// MemberSummary reports a member's net balance with gross per-counterparty
// breakdowns.
func (s *LedgerService) MemberSummary(ctx context.Context, groupID, memberID string) (*MemberSummary, error) {
	group, ledger, err := s.loadLedger(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(group, memberID); err != nil {
		return nil, err
	}
	b := ledger.Breakdown(memberID)
	return &MemberSummary{
		MemberID: memberID,
		Net:      b.Net,
		OwedToMe: b.OwedToMe,
		IOwe:     b.IOwe,
		OweMe:    b.OweMe,
		IOweTo:   b.IOweTo,
	}, nil
}

// MemberPositions reports what memberID would pay or receive settling with
// each counterparty, largest first. Each entry is what Settle will accept.
func (s *LedgerService) MemberPositions(ctx context.Context, groupID, memberID string) (*MemberPositions, error) {
	group, ledger, err := s.loadLedger(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(group, memberID); err != nil {
		return nil, err
	}

	out := &MemberPositions{MemberID: memberID}
	for _, p := range ledger.Positions(memberID, group.MemberIDs()) {
		if p.Amount.IsPositive() {
			out.IOwe = append(out.IOwe, p)
			out.TotalIOwe = out.TotalIOwe.Add(p.Amount)
		} else {
			p.Amount = p.Amount.Neg()
			out.OwesMe = append(out.OwesMe, p)
			out.TotalOwedToMe = out.TotalOwedToMe.Add(p.Amount)
		}
	}
	calculator.SortCounterparties(out.IOwe)
	calculator.SortCounterparties(out.OwesMe)
	return out, nil
}

// SuggestPairwise lists every bilateral debt in the group as a transfer.
func (s *LedgerService) SuggestPairwise(ctx context.Context, groupID string) ([]calculator.Transfer, error) {
	group, ledger, err := s.loadLedger(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return calculator.SuggestPairwise(ledger, group.MemberIDs()), nil
}

// SuggestMinimal returns the fewest transfers that zero every balance.
func (s *LedgerService) SuggestMinimal(ctx context.Context, groupID string) ([]calculator.Transfer, error) {
	group, ledger, err := s.loadLedger(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return calculator.SuggestMinimal(ledger, group.MemberIDs()), nil
}
