package types

import (
	"errors"
	"time"

	"github.com/beaconhq/groupfeed/internal/database/types/enum"
)

// ErrContentNotFound is returned when a content item does not exist.
var ErrContentNotFound = errors.New("content item not found")

// ErrVerseNotFound is returned when no shared passage matches a scripture
// reference and translation.
var ErrVerseNotFound = errors.New("verse text not found")

// ContentItem is implemented by every content kind that can appear in a group feed.
// It exposes the fields the feed projection and counter bookkeeping need without
// callers knowing the concrete kind.
type ContentItem interface {
	// Kind returns the content kind discriminator.
	Kind() enum.ContentKind
	// ItemID returns the row's primary key.
	ItemID() int64
	// GetGroupID returns the owning group.
	GetGroupID() int64
	// GetAuthorID returns the authoring user.
	GetAuthorID() int64
	// DisplayTitle returns the title shown in feed listings.
	DisplayTitle() string
	// PreviewText returns the raw text the feed preview is built from.
	PreviewText() string
	// Pinned reports whether the item is pinned in its kind listing.
	Pinned() bool
	// CreatedTime returns the creation timestamp used for feed ordering.
	CreatedTime() time.Time
	// CommentTotal returns the denormalized live comment count.
	CommentTotal() int64
	// ReactionTotal returns the denormalized reaction count.
	ReactionTotal() int64
	// Core returns the shared columns for mutation by writers.
	Core() *ContentCore
}

// ContentCore holds the columns shared by every content kind.
type ContentCore struct {
	ID            int64     `bun:",pk,autoincrement"      json:"id"`
	GroupID       int64     `bun:",notnull"               json:"groupId"`
	AuthorID      int64     `bun:",notnull"               json:"authorId"`
	Title         string    `bun:",notnull"               json:"title"`
	Body          string    `bun:",notnull"               json:"body"`
	IsPinned      bool      `bun:",notnull,default:false" json:"isPinned"`
	CommentCount  int64     `bun:",notnull,default:0"     json:"commentCount"`
	ReactionCount int64     `bun:",notnull,default:0"     json:"reactionCount"`
	IsDeleted     bool      `bun:",notnull,default:false" json:"isDeleted"`
	DeletedAt     time.Time `bun:",nullzero"              json:"deletedAt"`
	CreatedAt     time.Time `bun:",notnull"               json:"createdAt"`
	UpdatedAt     time.Time `bun:",notnull"               json:"updatedAt"`
}

// ItemID returns the row's primary key.
func (c *ContentCore) ItemID() int64 { return c.ID }

// GetGroupID returns the owning group.
func (c *ContentCore) GetGroupID() int64 { return c.GroupID }

// GetAuthorID returns the authoring user.
func (c *ContentCore) GetAuthorID() int64 { return c.AuthorID }

// DisplayTitle returns the title shown in feed listings.
func (c *ContentCore) DisplayTitle() string { return c.Title }

// PreviewText returns the raw text the feed preview is built from.
func (c *ContentCore) PreviewText() string { return c.Body }

// Pinned reports whether the item is pinned in its kind listing.
func (c *ContentCore) Pinned() bool { return c.IsPinned }

// CreatedTime returns the creation timestamp used for feed ordering.
func (c *ContentCore) CreatedTime() time.Time { return c.CreatedAt }

// CommentTotal returns the denormalized live comment count.
func (c *ContentCore) CommentTotal() int64 { return c.CommentCount }

// ReactionTotal returns the denormalized reaction count.
func (c *ContentCore) ReactionTotal() int64 { return c.ReactionCount }

// Core returns the shared columns for mutation by writers.
func (c *ContentCore) Core() *ContentCore { return c }

// Discussion is a general discussion post.
type Discussion struct {
	ContentCore `json:"content"`
}

// Kind returns the content kind discriminator.
func (*Discussion) Kind() enum.ContentKind { return enum.ContentKindDiscussion }

// PrayerRequest is a prayer request with urgency and answered tracking.
type PrayerRequest struct {
	ContentCore `json:"content"`

	IsUrgent   bool `bun:",notnull,default:false" json:"isUrgent"`
	IsAnswered bool `bun:",notnull,default:false" json:"isAnswered"`
}

// Kind returns the content kind discriminator.
func (*PrayerRequest) Kind() enum.ContentKind { return enum.ContentKindPrayerRequest }

// Testimony is a testimony that may require approval before it is shown.
type Testimony struct {
	ContentCore `json:"content"`

	IsApproved bool `bun:",notnull,default:false" json:"isApproved"`
}

// Kind returns the content kind discriminator.
func (*Testimony) Kind() enum.ContentKind { return enum.ContentKindTestimony }

// ScriptureShare is a shared scripture passage with an optional personal note in Body.
type ScriptureShare struct {
	ContentCore `json:"content"`

	Reference   string `bun:",notnull"  json:"reference"` // e.g. "John 3:16"
	Translation string `bun:",notnull"  json:"translation"`
	VerseText   string `bun:",notnull"  json:"verseText"`
}

// Kind returns the content kind discriminator.
func (*ScriptureShare) Kind() enum.ContentKind { return enum.ContentKindScriptureShare }

// DisplayTitle returns the scripture reference, which stands in for a title.
func (s *ScriptureShare) DisplayTitle() string {
	if s.Reference != "" {
		return s.Reference
	}

	return s.Title
}

// PreviewText prefers the sharer's note and falls back to the verse text.
func (s *ScriptureShare) PreviewText() string {
	if s.Body != "" {
		return s.Body
	}

	return s.VerseText
}
