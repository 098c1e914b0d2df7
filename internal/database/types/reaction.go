package types

import (
	"time"

	"github.com/beaconhq/groupfeed/internal/database/types/enum"
)

// Reaction is a user's emoji reaction to a content item.
// The composite primary key enforces at most one reaction per user per item;
// reacting again with a different emoji replaces the row in place.
type Reaction struct {
	ContentKind enum.ContentKind `bun:",pk"      json:"contentKind"`
	ContentID   int64            `bun:",pk"      json:"contentId"`
	UserID      int64            `bun:",pk"      json:"userId"`
	GroupID     int64            `bun:",notnull" json:"groupId"`
	Emoji       string           `bun:",notnull" json:"emoji"`
	CreatedAt   time.Time        `bun:",notnull" json:"createdAt"`
	UpdatedAt   time.Time        `bun:",notnull" json:"updatedAt"`
}
