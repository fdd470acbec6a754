package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/settleup/internal/ids"
	"github.com/mmynk/settleup/internal/models"
)

const settlementColumns = "id, group_id, from_member, to_member, amount, notes, settled_at"

// createSettlement inserts a settlement. It only runs inside WithinTx.
func createSettlement(ctx context.Context, q querier, d Dialect, settlement *models.Settlement) error {
	if settlement.SettledAt.IsZero() {
		settlement.SettledAt = time.Now().UTC()
	}
	if settlement.ID == "" {
		settlement.ID = ids.NewSortable(settlement.SettledAt)
	}

	_, err := q.ExecContext(ctx, d.rebind(
		"INSERT INTO settlements ("+settlementColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)"),
		settlement.ID, settlement.GroupID, settlement.From, settlement.To,
		settlement.Amount, settlement.Notes, toMillis(settlement.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

// GetSettlement retrieves a settlement by ID.
func (s *Store) GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(
		"SELECT "+settlementColumns+" FROM settlements WHERE id = ?"),
		settlementID,
	)
	settlement, err := scanSettlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "settlement", ID: settlementID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return settlement, nil
}

// ListSettlementsByGroup retrieves all settlements for a group, oldest first.
func (s *Store) ListSettlementsByGroup(ctx context.Context, groupID string) ([]*models.Settlement, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		"SELECT "+settlementColumns+" FROM settlements WHERE group_id = ? ORDER BY settled_at, id"),
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements by group: %w", err)
	}
	defer rows.Close()

	var settlements []*models.Settlement
	for rows.Next() {
		settlement, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlements = append(settlements, settlement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return settlements, nil
}

func scanSettlement(r rowScanner) (*models.Settlement, error) {
	settlement := &models.Settlement{}
	var settledAt int64
	if err := r.Scan(&settlement.ID, &settlement.GroupID, &settlement.From, &settlement.To,
		&settlement.Amount, &settlement.Notes, &settledAt); err != nil {
		return nil, err
	}
	settlement.SettledAt = fromMillis(settledAt)
	return settlement, nil
}
