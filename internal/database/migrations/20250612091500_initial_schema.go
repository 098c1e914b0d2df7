package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/beaconhq/groupfeed/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		tables := []struct {
			model any
			name  string
		}{
			{(*types.Discussion)(nil), "discussions"},
			{(*types.PrayerRequest)(nil), "prayer_requests"},
			{(*types.Testimony)(nil), "testimonies"},
			{(*types.ScriptureShare)(nil), "scripture_shares"},
			{(*types.Comment)(nil), "comments"},
			{(*types.Reaction)(nil), "reactions"},
			{(*types.FeedItem)(nil), "feed_items"},
			{(*types.Profile)(nil), "profiles"},
			{(*types.Membership)(nil), "memberships"},
		}

		for _, table := range tables {
			_, err := db.NewCreateTable().
				Model(table.model).
				ModelTableExpr(table.name).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table %s: %w", table.name, err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		tables := []string{
			"memberships",
			"profiles",
			"feed_items",
			"reactions",
			"comments",
			"scripture_shares",
			"testimonies",
			"prayer_requests",
			"discussions",
		}

		var dropStmt strings.Builder
		dropStmt.WriteString("DROP TABLE IF EXISTS ")

		for i, table := range tables {
			if i > 0 {
				dropStmt.WriteString(", ")
			}
			dropStmt.WriteString(table)
		}

		dropStmt.WriteString(" CASCADE")

		_, err := db.NewRaw(dropStmt.String()).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop tables: %w", err)
		}

		return nil
	})
}
