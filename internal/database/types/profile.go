package types

import (
	"errors"
	"time"
)

// ErrProfileNotFound is returned when a user profile does not exist.
var ErrProfileNotFound = errors.New("profile not found")

// Profile holds the denormalized author fields feed views are decorated with.
type Profile struct {
	UserID      int64     `bun:",pk"       json:"userId"`
	DisplayName string    `bun:",notnull"  json:"displayName"`
	AvatarURL   string    `bun:",nullzero" json:"avatarUrl"`
	CreatedAt   time.Time `bun:",notnull"  json:"createdAt"`
	UpdatedAt   time.Time `bun:",notnull"  json:"updatedAt"`
}
