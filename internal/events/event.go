// Package events defines the closed set of control-plane event types and
// their wire codec. Decoding is the only place that inspects the type
// discriminator dynamically; everything past the codec works with typed
// payloads.
package events

import (
	"encoding/json"

	"glen/internal/models"
)

// Type identifies the kind of a meta-event.
type Type string

const (
	// TypeCommunityConfig merges fields into the community configuration.
	TypeCommunityConfig Type = "community.config"
	// TypeChannelCreated records the creation of a channel.
	TypeChannelCreated Type = "channel.created"
	// TypeChannelUpdated merges provided fields into an existing channel.
	TypeChannelUpdated Type = "channel.updated"
	// TypeChannelArchived marks a channel archived; it stays addressable.
	TypeChannelArchived Type = "channel.archived"
	// TypeCommunityRole upserts one identity's role assignment.
	TypeCommunityRole Type = "community.role"
	// TypeAnnouncement is an ephemeral community-wide notice.
	TypeAnnouncement Type = "community.announcement"
	// TypeModeration carries ban/unban/redact/mute actions.
	TypeModeration Type = "moderation.action"
	// TypeSnapshot atomically replaces the community projection.
	TypeSnapshot Type = "community.snapshot"
)

// Payload is the typed body of a meta-event.
type Payload interface {
	EventType() Type
}

// MetaEvent wraps any Payload with delivery metadata, in the same envelope
// shape chat messages travel in.
type MetaEvent struct {
	Type        Type            `json:"type"`
	CommunityID string          `json:"community_id"`
	Sender      string          `json:"sender"`
	Timestamp   int64           `json:"timestamp"` // unix micro, ordering marker
	Payload     json.RawMessage `json:"payload"`
}

// ConfigPayload merges the provided fields into the community config.
// Nil pointers mean "leave unchanged".
type ConfigPayload struct {
	Name              *string              `json:"name,omitempty"`
	Description       *string              `json:"description,omitempty"`
	InvitePolicy      *models.InvitePolicy `json:"invite_policy,omitempty"`
	DefaultPermission *models.Permission   `json:"default_permission,omitempty"`
}

func (ConfigPayload) EventType() Type { return TypeCommunityConfig }

type ChannelCreatedPayload struct {
	ChannelID   string            `json:"channel_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	GroupRef    string            `json:"group_ref"`
	Category    string            `json:"category,omitempty"`
	Permission  models.Permission `json:"permission"`
}

func (ChannelCreatedPayload) EventType() Type { return TypeChannelCreated }

// ChannelUpdatedPayload merges only its non-nil fields.
type ChannelUpdatedPayload struct {
	ChannelID   string             `json:"channel_id"`
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	Category    *string            `json:"category,omitempty"`
	Permission  *models.Permission `json:"permission,omitempty"`
}

func (ChannelUpdatedPayload) EventType() Type { return TypeChannelUpdated }

type ChannelArchivedPayload struct {
	ChannelID string `json:"channel_id"`
}

func (ChannelArchivedPayload) EventType() Type { return TypeChannelArchived }

type RolePayload struct {
	Target string      `json:"target"`
	Role   models.Role `json:"role"`
}

func (RolePayload) EventType() Type { return TypeCommunityRole }

type AnnouncementPayload struct {
	Text string `json:"text"`
}

func (AnnouncementPayload) EventType() Type { return TypeAnnouncement }

// ModerationAction discriminates moderation.action payloads.
type ModerationAction string

const (
	ActionBan    ModerationAction = "ban"
	ActionUnban  ModerationAction = "unban"
	ActionRedact ModerationAction = "redact"
	ActionMute   ModerationAction = "mute"
)

type ModerationPayload struct {
	Action          ModerationAction `json:"action"`
	Target          string           `json:"target,omitempty"`
	TargetMessageID string           `json:"target_message_id,omitempty"`
}

func (ModerationPayload) EventType() Type { return TypeModeration }

// RoleEntry is one (identity, role) pair inside a snapshot.
type RoleEntry struct {
	Identity string      `json:"identity"`
	Role     models.Role `json:"role"`
}

// SnapshotPayload is a full-state transfer: it replaces the community's
// channel, role and ban sets wholesale, never merging with prior values.
type SnapshotPayload struct {
	Config   models.CommunityConfig `json:"config"`
	Channels []models.ChannelState  `json:"channels"`
	Roles    []RoleEntry            `json:"roles"`
	Bans     []string               `json:"bans"`
}

func (SnapshotPayload) EventType() Type { return TypeSnapshot }
