package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			-- Feed projection indexes
			CREATE INDEX IF NOT EXISTS idx_feed_items_group_time
			ON feed_items (group_id, created_at DESC, id DESC)
			WHERE is_deleted = false;

			CREATE INDEX IF NOT EXISTS idx_feed_items_group_kind_pinned
			ON feed_items (group_id, content_kind, is_pinned DESC, created_at DESC)
			WHERE is_deleted = false;

			-- Comment lookup indexes
			CREATE INDEX IF NOT EXISTS idx_comments_content
			ON comments (content_kind, content_id, created_at ASC)
			WHERE is_deleted = false;

			CREATE INDEX IF NOT EXISTS idx_comments_author
			ON comments (author_id, created_at DESC);

			-- Membership reverse lookup
			CREATE INDEX IF NOT EXISTS idx_memberships_user
			ON memberships (user_id, joined_at DESC);
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			DROP INDEX IF EXISTS idx_feed_items_group_time;
			DROP INDEX IF EXISTS idx_feed_items_group_kind_pinned;
			DROP INDEX IF EXISTS idx_comments_content;
			DROP INDEX IF EXISTS idx_comments_author;
			DROP INDEX IF EXISTS idx_memberships_user;
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop indexes: %w", err)
		}

		return nil
	})
}
