package models

import (
	"context"
	"fmt"

	"github.com/beaconhq/groupfeed/internal/database/dbretry"
	"github.com/beaconhq/groupfeed/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// MembershipModel handles queries against the memberships table.
type MembershipModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewMembership creates a MembershipModel.
func NewMembership(db *bun.DB, logger *zap.Logger) *MembershipModel {
	return &MembershipModel{
		db:     db,
		logger: logger.Named("db_membership"),
	}
}

// IsMember reports whether the user belongs to the group.
func (m *MembershipModel) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		exists, err := m.db.NewSelect().
			Model((*types.Membership)(nil)).
			Where("group_id = ?", groupID).
			Where("user_id = ?", userID).
			Exists(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to check membership %d/%d: %w", groupID, userID, err)
		}

		return exists, nil
	})
}

// Upsert writes a membership, updating the role when one exists.
func (m *MembershipModel) Upsert(ctx context.Context, membership *types.Membership) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		if _, err := m.db.NewInsert().
			Model(membership).
			On("CONFLICT (group_id, user_id) DO UPDATE").
			Set("role = EXCLUDED.role").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert membership %d/%d: %w", membership.GroupID, membership.UserID, err)
		}

		return nil
	})
}

// Delete removes a membership. Returns whether a row existed.
func (m *MembershipModel) Delete(ctx context.Context, groupID, userID int64) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		res, err := m.db.NewDelete().
			Model((*types.Membership)(nil)).
			Where("group_id = ?", groupID).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to delete membership %d/%d: %w", groupID, userID, err)
		}

		rows, _ := res.RowsAffected()

		return rows > 0, nil
	})
}

// GetGroupIDs returns the groups a user belongs to.
func (m *MembershipModel) GetGroupIDs(ctx context.Context, userID int64) ([]int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]int64, error) {
		var groupIDs []int64

		err := m.db.NewSelect().
			Model((*types.Membership)(nil)).
			Column("group_id").
			Where("user_id = ?", userID).
			Order("joined_at DESC").
			Scan(ctx, &groupIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to list groups for user %d: %w", userID, err)
		}

		return groupIDs, nil
	})
}
