package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/events"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
)

// SettleRequest records that From paid To to clear their pairwise balance.
type SettleRequest struct {
	GroupID string
	From    string
	To      string
	Amount  money.Money
	Notes   string
}

// SettleResult is the committed settlement and every obligation it closed.
type SettleResult struct {
	Settlement *models.Settlement `json:"settlement"`
	Discharged []models.Discharge `json:"discharged"`
}

// Settle discharges every open obligation between two members in one
// transaction and records the settlement.
//
// Algorithm:
//  1. reject self-settlement, non-positive amounts and members off the roster
//  2. inside the transaction, fold the group's open shares and take
//     net = Pairwise(from, to)
//  3. net <= 0: nothing to settle in this direction
//  4. |amount - net| > 0.01: the caller's figure is stale or wrong
//  5. flip from→to shares (settled with to) and to→from shares (settled with
//     from), then insert the settlement for net
//
// If fewer rows flip than were read, another settlement won the race and the
// transaction rolls back with an AtomicityError.
func (s *LedgerService) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	slog.InfoContext(ctx, "Settle request received",
		"group_id", req.GroupID,
		"from", req.From,
		"to", req.To,
		"amount", req.Amount.String(),
	)

	result, err := s.settle(ctx, req)
	if err != nil {
		s.metrics.SettleRejected(rejectReason(err))
		slog.WarnContext(ctx, "Settle rejected",
			"group_id", req.GroupID,
			"from", req.From,
			"to", req.To,
			"error", err,
		)
		return nil, err
	}

	st := result.Settlement
	slog.InfoContext(ctx, "Settlement recorded",
		"settlement_id", st.ID,
		"group_id", st.GroupID,
		"amount", st.Amount.String(),
		"discharged", len(result.Discharged),
	)
	s.metrics.Settled(st.Amount.Minor())
	s.publish(ctx, &events.Message{
		Type:         events.SettlementRecorded,
		GroupID:      st.GroupID,
		SettlementID: st.ID,
		From:         st.From,
		To:           st.To,
		Amount:       st.Amount,
		Timestamp:    st.SettledAt,
	})
	return result, nil
}

func (s *LedgerService) settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	if req.From == req.To {
		return nil, &models.ValidationError{Field: "to", Reason: "cannot settle with yourself"}
	}
	if !req.Amount.IsPositive() {
		return nil, &models.ValidationError{Field: "amount", Reason: "must be greater than 0"}
	}

	group, err := s.store.GetGroup(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	for _, m := range []struct{ field, id string }{{"from", req.From}, {"to", req.To}} {
		if !group.HasMember(m.id) {
			return nil, &models.ValidationError{Field: m.field, Reason: fmt.Sprintf("member %q is not in the group", m.id)}
		}
	}

	var result *SettleResult
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		shares, err := tx.ListOpenShares(ctx, req.GroupID)
		if err != nil {
			return err
		}

		net := calculator.NewLedger(shares).Pairwise(req.From, req.To)
		if !net.IsPositive() {
			return &models.NothingOwedError{From: req.From, To: req.To, Reverse: net.Neg()}
		}
		if !req.Amount.Within(net, money.Cent) {
			return &models.AmountMismatchError{Expected: net, Provided: req.Amount}
		}

		var paid, offset []string
		var discharged []models.Discharge
		for _, sh := range shares {
			var kind models.DischargeKind
			switch {
			case sh.OwedBy == req.From && sh.PaidBy == req.To:
				kind = models.DischargePaid
				paid = append(paid, sh.ObligationID)
			case sh.OwedBy == req.To && sh.PaidBy == req.From:
				kind = models.DischargeOffset
				offset = append(offset, sh.ObligationID)
			default:
				continue
			}
			discharged = append(discharged, models.Discharge{
				ObligationID: sh.ObligationID,
				ExpenseID:    sh.ExpenseID,
				Description:  sh.Description,
				Amount:       sh.Amount,
				Kind:         kind,
			})
		}

		at := s.now()
		nPaid, err := tx.MarkSettled(ctx, paid, req.To, at)
		if err != nil {
			return err
		}
		nOffset, err := tx.MarkSettled(ctx, offset, req.From, at)
		if err != nil {
			return err
		}
		if want := int64(len(paid) + len(offset)); nPaid+nOffset != want {
			return &models.AtomicityError{
				Op:  "settle",
				Err: fmt.Errorf("discharged %d of %d obligations; a concurrent settlement changed them", nPaid+nOffset, want),
			}
		}

		settlement := &models.Settlement{
			GroupID:   req.GroupID,
			From:      req.From,
			To:        req.To,
			Amount:    net,
			Notes:     strings.TrimSpace(req.Notes),
			SettledAt: at,
		}
		if err := tx.CreateSettlement(ctx, settlement); err != nil {
			return err
		}

		result = &SettleResult{Settlement: settlement, Discharged: discharged}
		return nil
	})
	if err != nil {
		return nil, asAtomicity("settle", err)
	}
	return result, nil
}

// ListSettlements returns a group's settlement history, oldest first.
func (s *LedgerService) ListSettlements(ctx context.Context, groupID string) ([]*models.Settlement, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.ListSettlementsByGroup(ctx, groupID)
}

// rejectReason labels a failed settle for metrics.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrNothingOwed):
		return "nothing_owed"
	case errors.Is(err, models.ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, models.ErrAtomicity):
		return "atomicity"
	default:
		return "other"
	}
}
