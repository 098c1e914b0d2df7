package feed

import (
	"time"

	"github.com/beaconhq/groupfeed/internal/database/types"
	"github.com/beaconhq/groupfeed/internal/database/types/enum"
)

// FeedItemView is one rendered entry of a group's activity feed.
type FeedItemView struct {
	ItemID        int64            `json:"itemId"`
	Kind          enum.ContentKind `json:"kind"`
	GroupID       int64            `json:"groupId"`
	AuthorID      int64            `json:"authorId"`
	AuthorName    string           `json:"authorName"`
	AuthorAvatar  string           `json:"authorAvatar"`
	Title         string           `json:"title"`
	Preview       string           `json:"preview"`
	CommentCount  int64            `json:"commentCount"`
	ReactionCount int64            `json:"reactionCount"`
	IsPinned      bool             `json:"isPinned"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// Pagination describes the position of a page within the full result set.
type Pagination struct {
	Page        int   `json:"page"`
	PageSize    int   `json:"pageSize"`
	TotalCount  int64 `json:"totalCount"`
	TotalPages  int   `json:"totalPages"`
	HasNext     bool  `json:"hasNext"`
	HasPrevious bool  `json:"hasPrevious"`
}

// FeedPage is one page of feed items plus its pagination envelope.
type FeedPage struct {
	Items      []FeedItemView `json:"items"`
	Pagination Pagination     `json:"pagination"`
	FromCache  bool           `json:"fromCache"`
}

// CommentView is one rendered comment on a content item.
type CommentView struct {
	UUID       string    `json:"uuid"`
	AuthorID   int64     `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CommentPage is one page of comments plus its pagination envelope.
type CommentPage struct {
	Comments   []CommentView `json:"comments"`
	Pagination Pagination    `json:"pagination"`
}

// KindStats aggregates engagement for one content kind within a group.
type KindStats struct {
	Items     int64 `json:"items"`
	Comments  int64 `json:"comments"`
	Reactions int64 `json:"reactions"`
}

// GroupStats aggregates engagement across all content kinds of a group.
type GroupStats struct {
	GroupID        int64                          `json:"groupId"`
	TotalItems     int64                          `json:"totalItems"`
	TotalComments  int64                          `json:"totalComments"`
	TotalReactions int64                          `json:"totalReactions"`
	ItemsByKind    map[enum.ContentKind]KindStats `json:"itemsByKind"`
	GeneratedAt    time.Time                      `json:"generatedAt"`
}

// BuildPagination computes the pagination envelope for a page position.
// An empty result set still reports one total page so clients always have a
// valid last page to land on.
func BuildPagination(page, pageSize int, totalCount int64) Pagination {
	totalPages := int((totalCount + int64(pageSize) - 1) / int64(pageSize))
	if totalPages < 1 {
		totalPages = 1
	}

	return Pagination{
		Page:        page,
		PageSize:    pageSize,
		TotalCount:  totalCount,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
}

// newFeedItemView renders a projection row, decorating it with the author's
// profile when one is known.
func newFeedItemView(item *types.FeedItem, profiles map[int64]*types.Profile) FeedItemView {
	view := FeedItemView{
		ItemID:        item.ContentID,
		Kind:          item.ContentKind,
		GroupID:       item.GroupID,
		AuthorID:      item.AuthorID,
		Title:         item.Title,
		Preview:       item.Preview,
		CommentCount:  item.CommentCount,
		ReactionCount: item.ReactionCount,
		IsPinned:      item.IsPinned,
		CreatedAt:     item.CreatedAt,
	}

	if profile, ok := profiles[item.AuthorID]; ok {
		view.AuthorName = profile.DisplayName
		view.AuthorAvatar = profile.AvatarURL
	}

	return view
}
