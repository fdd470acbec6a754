package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmynk/settleup/internal/models"
)

// CreateMember registers a member that can later join groups.
func (s *LedgerService) CreateMember(ctx context.Context, displayName string) (*models.Member, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, &models.ValidationError{Field: "display_name", Reason: "is required"}
	}
	member := &models.Member{DisplayName: displayName}
	if err := s.store.CreateMember(ctx, member); err != nil {
		slog.ErrorContext(ctx, "CreateMember failed", "error", err)
		return nil, fmt.Errorf("failed to create member: %w", err)
	}
	slog.InfoContext(ctx, "Member created", "member_id", member.ID)
	return member, nil
}

// CreateGroup creates a group whose roster is memberIDs in join order.
func (s *LedgerService) CreateGroup(ctx context.Context, name string, memberIDs []string) (*models.Group, error) {
	slog.InfoContext(ctx, "CreateGroup request received", "name", name, "members_count", len(memberIDs))

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &models.ValidationError{Field: "name", Reason: "is required"}
	}
	if len(memberIDs) == 0 {
		return nil, &models.ValidationError{Field: "member_ids", Reason: "a group needs at least one member"}
	}
	seen := make(map[string]bool, len(memberIDs))
	group := &models.Group{Name: name, CreatedAt: s.now()}
	for _, id := range memberIDs {
		if seen[id] {
			return nil, &models.ValidationError{Field: "member_ids", Reason: fmt.Sprintf("member %q listed more than once", id)}
		}
		seen[id] = true
		group.Members = append(group.Members, models.Member{ID: id})
	}

	if err := s.store.CreateGroup(ctx, group); err != nil {
		slog.ErrorContext(ctx, "CreateGroup failed", "error", err)
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	slog.InfoContext(ctx, "Group created", "group_id", group.ID)
	return s.store.GetGroup(ctx, group.ID)
}

// GetGroup returns a group with its roster.
func (s *LedgerService) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return s.store.GetGroup(ctx, groupID)
}
