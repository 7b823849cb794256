package models

import "time"

// GroupKind distinguishes multi-party groups from two-party private conversations.
type GroupKind string

const (
	GroupKindGroup   GroupKind = "group"
	GroupKindPrivate GroupKind = "private"
)

// Valid reports whether k is a known group kind.
func (k GroupKind) Valid() bool {
	return k == GroupKindGroup || k == GroupKindPrivate
}

// Role is a member's role inside a group.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Group represents a chat group. Name is nil for private conversations.
type Group struct {
	ID        int64     `db:"id" json:"id"`
	Name      *string   `db:"name" json:"name"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	Kind      GroupKind `db:"kind" json:"kind"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Membership binds a user to a group with its moderation flags.
type Membership struct {
	GroupID  int64     `db:"group_id" json:"group_id"`
	UserID   string    `db:"user_id" json:"user_id"`
	Role     Role      `db:"role" json:"role"`
	Banned   bool      `db:"banned" json:"banned"`
	Muted    bool      `db:"muted" json:"muted"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// IsAdmin reports whether the member holds the admin role.
func (m Membership) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// GroupSummary is a group as listed for one user.
type GroupSummary struct {
	Group
	UnreadCount int    `db:"unread_count" json:"unread_count"`
	PeerID      string `db:"peer_id" json:"peer_id,omitempty"`
}

// AdminGroup is a group the caller administers, with its head count.
type AdminGroup struct {
	Group
	MemberCount int `db:"member_count" json:"member_count"`
}

// GroupDetail is a group together with its member list.
type GroupDetail struct {
	Group
	Members     []Membership `json:"members"`
	MemberCount int          `json:"member_count"`
}
