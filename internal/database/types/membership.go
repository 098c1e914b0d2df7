package types

import (
	"time"
)

// MembershipRole is the member's role within a group.
type MembershipRole string

const (
	MembershipRoleMember MembershipRole = "member"
	MembershipRoleLeader MembershipRole = "leader"
	MembershipRoleAdmin  MembershipRole = "admin"
)

// Membership records that a user belongs to a group. Feed access checks read
// this table through the cache.
type Membership struct {
	GroupID  int64          `bun:",pk"      json:"groupId"`
	UserID   int64          `bun:",pk"      json:"userId"`
	Role     MembershipRole `bun:",notnull" json:"role"`
	JoinedAt time.Time      `bun:",notnull" json:"joinedAt"`
}
