package types

import (
	"errors"
	"time"

	"github.com/beaconhq/groupfeed/internal/database/types/enum"
	"github.com/google/uuid"
)

// ErrCommentNotFound is returned when a comment does not exist.
var ErrCommentNotFound = errors.New("comment not found")

// Comment is a comment on a content item of any kind.
// Denormalized comment counts only include rows where IsDeleted is false.
type Comment struct {
	ID          int64            `bun:",pk,autoincrement"      json:"id"`
	UUID        uuid.UUID        `bun:",notnull,unique"        json:"uuid"` // Stable public identifier
	ContentKind enum.ContentKind `bun:",notnull"               json:"contentKind"`
	ContentID   int64            `bun:",notnull"               json:"contentId"`
	GroupID     int64            `bun:",notnull"               json:"groupId"`
	AuthorID    int64            `bun:",notnull"               json:"authorId"`
	Body        string           `bun:",notnull"               json:"body"`
	IsDeleted   bool             `bun:",notnull,default:false" json:"isDeleted"`
	DeletedAt   time.Time        `bun:",nullzero"              json:"deletedAt"`
	CreatedAt   time.Time        `bun:",notnull"               json:"createdAt"`
	UpdatedAt   time.Time        `bun:",notnull"               json:"updatedAt"`
}
