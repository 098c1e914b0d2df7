package database

import (
	"github.com/beaconhq/groupfeed/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	content    *models.ContentModel
	comment    *models.CommentModel
	reaction   *models.ReactionModel
	feed       *models.FeedModel
	profile    *models.ProfileModel
	membership *models.MembershipModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		content:    models.NewContent(db, logger),
		comment:    models.NewComment(db, logger),
		reaction:   models.NewReaction(db, logger),
		feed:       models.NewFeed(db, logger),
		profile:    models.NewProfile(db, logger),
		membership: models.NewMembership(db, logger),
	}
}

// Content returns the content model repository.
func (r *Repository) Content() *models.ContentModel {
	return r.content
}

// Comment returns the comment model repository.
func (r *Repository) Comment() *models.CommentModel {
	return r.comment
}

// Reaction returns the reaction model repository.
func (r *Repository) Reaction() *models.ReactionModel {
	return r.reaction
}

// Feed returns the feed projection model repository.
func (r *Repository) Feed() *models.FeedModel {
	return r.feed
}

// Profile returns the profile model repository.
func (r *Repository) Profile() *models.ProfileModel {
	return r.profile
}

// Membership returns the membership model repository.
func (r *Repository) Membership() *models.MembershipModel {
	return r.membership
}
