package types

import (
	"time"

	"github.com/beaconhq/groupfeed/internal/database/types/enum"
)

// FeedItem is the denormalized feed projection row. One row mirrors one
// content item; the (ContentKind, ContentID) pair is unique. Counters here
// must stay in lockstep with the authoritative row they mirror.
type FeedItem struct {
	ID            int64            `bun:",pk,autoincrement"             json:"id"`
	ContentKind   enum.ContentKind `bun:",notnull,unique:feed_item_src" json:"contentKind"`
	ContentID     int64            `bun:",notnull,unique:feed_item_src" json:"contentId"`
	GroupID       int64            `bun:",notnull"                      json:"groupId"`
	AuthorID      int64            `bun:",notnull"                      json:"authorId"`
	Title         string           `bun:",notnull"                      json:"title"`
	Preview       string           `bun:",notnull"                      json:"preview"`
	CommentCount  int64            `bun:",notnull,default:0"            json:"commentCount"`
	ReactionCount int64            `bun:",notnull,default:0"            json:"reactionCount"`
	IsPinned      bool             `bun:",notnull,default:false"        json:"isPinned"`
	IsDeleted     bool             `bun:",notnull,default:false"        json:"isDeleted"`
	CreatedAt     time.Time        `bun:",notnull"                      json:"createdAt"` // Copied from the source row
	UpdatedAt     time.Time        `bun:",notnull"                      json:"updatedAt"`
}
