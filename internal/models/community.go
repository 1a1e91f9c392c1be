// Package models defines the data model shared across the application.
package models

// Role is a member's privilege tier within a community, ordered by privilege.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// roleLevel orders roles by privilege; higher wins.
var roleLevel = map[Role]int{
	RoleMember:    0,
	RoleModerator: 1,
	RoleAdmin:     2,
	RoleOwner:     3,
}

func (r Role) Valid() bool {
	_, ok := roleLevel[r]
	return ok
}

// AtLeast reports whether r carries at least the privilege of min.
func (r Role) AtLeast(min Role) bool {
	return roleLevel[r] >= roleLevel[min]
}

// Permission controls who may post in a channel.
type Permission string

const (
	PermissionOpen      Permission = "open"
	PermissionModerated Permission = "moderated"
	PermissionReadOnly  Permission = "read-only"
)

func (p Permission) Valid() bool {
	switch p {
	case PermissionOpen, PermissionModerated, PermissionReadOnly:
		return true
	}
	return false
}

// InvitePolicy controls which roles may mint invite tokens.
type InvitePolicy string

const (
	InviteAnyone     InvitePolicy = "anyone"
	InviteModerators InvitePolicy = "moderators"
	InviteAdmins     InvitePolicy = "admins"
)

// CommunityConfig is the mutable community-wide configuration. Zero values
// mean "not set"; config events merge field by field.
type CommunityConfig struct {
	Name              string       `json:"name,omitempty"`
	Description       string       `json:"description,omitempty"`
	InvitePolicy      InvitePolicy `json:"invite_policy,omitempty"`
	DefaultPermission Permission   `json:"default_permission,omitempty"`
}

// CommunityState is the replicated projection for one community. It is
// created on first sync and mutated only by folding one event at a time.
type CommunityState struct {
	ID       string                   `json:"community_id"`
	Config   CommunityConfig          `json:"config"`
	Channels map[string]*ChannelState `json:"channels"`
	Roles    map[string]Role          `json:"roles"`
	Bans     map[string]struct{}      `json:"bans"`

	// LastSnapshotTS is the ordering marker of the last applied snapshot.
	// Events stamped earlier than it are superseded and dropped.
	LastSnapshotTS int64 `json:"last_snapshot_ts"`
}

func NewCommunityState(id string) *CommunityState {
	return &CommunityState{
		ID:       id,
		Channels: make(map[string]*ChannelState),
		Roles:    make(map[string]Role),
		Bans:     make(map[string]struct{}),
	}
}

// RoleOf returns the identity's role; absence defaults to member.
func (s *CommunityState) RoleOf(identity string) Role {
	if r, ok := s.Roles[identity]; ok {
		return r
	}
	return RoleMember
}

func (s *CommunityState) Banned(identity string) bool {
	_, ok := s.Bans[identity]
	return ok
}
