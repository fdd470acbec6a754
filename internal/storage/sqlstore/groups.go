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

// CreateMember persists a new member.
func (s *Store) CreateMember(ctx context.Context, member *models.Member) error {
	if member.ID == "" {
		member.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(
		"INSERT INTO members (id, display_name) VALUES (?, ?)"),
		member.ID, member.DisplayName,
	)
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

// CreateGroup persists a new group and its roster.
func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = ids.New()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.dialect.rebind(
		"INSERT INTO groups (id, name, created_at) VALUES (?, ?, ?)"),
		group.ID, group.Name, toMillis(group.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	for i, m := range group.Members {
		_, err = tx.ExecContext(ctx, s.dialect.rebind(
			"INSERT INTO group_members (group_id, member_id, position) VALUES (?, ?, ?)"),
			group.ID, m.ID, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert group member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID with its roster in join order.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	var createdAt int64

	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		"SELECT id, name, created_at FROM groups WHERE id = ?"),
		groupID,
	).Scan(&group.ID, &group.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "group", ID: groupID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	group.CreatedAt = fromMillis(createdAt)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT m.id, m.display_name
		 FROM group_members gm JOIN members m ON m.id = gm.member_id
		 WHERE gm.group_id = ? ORDER BY gm.position`),
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		group.Members = append(group.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group members: %w", err)
	}

	return group, nil
}
