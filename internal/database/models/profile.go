package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/beaconhq/groupfeed/internal/database/dbretry"
	"github.com/beaconhq/groupfeed/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ProfileModel handles queries against the profiles table.
type ProfileModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewProfile creates a ProfileModel.
func NewProfile(db *bun.DB, logger *zap.Logger) *ProfileModel {
	return &ProfileModel{
		db:     db,
		logger: logger.Named("db_profile"),
	}
}

// Upsert writes a profile, replacing the display fields when one exists.
func (m *ProfileModel) Upsert(ctx context.Context, profile *types.Profile) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		if _, err := m.db.NewInsert().
			Model(profile).
			On("CONFLICT (user_id) DO UPDATE").
			Set("display_name = EXCLUDED.display_name").
			Set("avatar_url = EXCLUDED.avatar_url").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert profile %d: %w", profile.UserID, err)
		}

		return nil
	})
}

// GetByID fetches a single profile.
func (m *ProfileModel) GetByID(ctx context.Context, userID int64) (*types.Profile, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Profile, error) {
		var profile types.Profile

		err := m.db.NewSelect().
			Model(&profile).
			Where("user_id = ?", userID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: %d", types.ErrProfileNotFound, userID)
			}

			return nil, fmt.Errorf("failed to get profile %d: %w", userID, err)
		}

		return &profile, nil
	})
}

// GetByIDs fetches a batch of profiles keyed by user ID.
// Unknown users are simply absent from the result.
func (m *ProfileModel) GetByIDs(ctx context.Context, userIDs []int64) (map[int64]*types.Profile, error) {
	if len(userIDs) == 0 {
		return map[int64]*types.Profile{}, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (map[int64]*types.Profile, error) {
		var profiles []*types.Profile

		err := m.db.NewSelect().
			Model(&profiles).
			Where("user_id IN (?)", bun.In(userIDs)).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get profiles batch: %w", err)
		}

		result := make(map[int64]*types.Profile, len(profiles))
		for _, profile := range profiles {
			result[profile.UserID] = profile
		}

		return result, nil
	})
}
