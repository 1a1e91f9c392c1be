package events

import (
	"encoding/json"

	"glen/internal/models"
)

// Field and collection bounds. A peer is untrusted; every length is checked
// before any value reaches the projection.
const (
	MaxNameLen = 200
	MaxDescLen = 5000
	MaxIDLen   = 512

	MaxSnapshotChannels = 500
	MaxSnapshotRoles    = 1000
	MaxSnapshotBans     = 5000

	// MaxEventBytes bounds every meta-event except snapshots, which carry
	// full channel/role/ban sets and get their own ceiling sized for all
	// collections at their field bounds, with escaping headroom.
	MaxEventBytes    = 64 * 1024
	MaxSnapshotBytes = 16 * 1024 * 1024

	MaxMessageBytes = 512 * 1024
	MaxTextLen      = 100_000
	MaxParents      = 20
	MaxQuotes       = 10
)

func sizeCeiling(t Type) int {
	if t == TypeSnapshot {
		return MaxSnapshotBytes
	}
	return MaxEventBytes
}

// Encode validates p, wraps it in a MetaEvent envelope and marshals it.
func Encode(communityID, sender string, timestamp int64, p Payload) ([]byte, error) {
	if err := validatePayload(p); err != nil {
		return nil, err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, invalid("payload", "marshal: %v", err)
	}
	ev := MetaEvent{
		Type:        p.EventType(),
		CommunityID: communityID,
		Sender:      sender,
		Timestamp:   timestamp,
		Payload:     body,
	}
	data, err := json.Marshal(&ev)
	if err != nil {
		return nil, invalid("event", "marshal: %v", err)
	}
	// Same ceiling the receiving side enforces, so nothing publishable is
	// undecodable.
	if max := sizeCeiling(ev.Type); len(data) > max {
		return nil, invalid("event", "encoded size %d exceeds %d", len(data), max)
	}
	return data, nil
}

// Decode parses a wire meta-event and its typed payload, enforcing all
// bounds. Unknown discriminators and bound violations come back as
// *ValidationError so the caller can skip the event and continue.
func Decode(data []byte) (*MetaEvent, Payload, error) {
	if len(data) > MaxSnapshotBytes {
		return nil, nil, invalid("event", "encoded size %d exceeds %d", len(data), MaxSnapshotBytes)
	}
	var ev MetaEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, nil, invalid("event", "unmarshal: %v", err)
	}
	if max := sizeCeiling(ev.Type); len(data) > max {
		return nil, nil, invalid("event", "encoded size %d exceeds %d", len(data), max)
	}
	if err := checkID("community_id", ev.CommunityID); err != nil {
		return nil, nil, err
	}
	if err := checkID("sender", ev.Sender); err != nil {
		return nil, nil, err
	}

	var p Payload
	switch ev.Type {
	case TypeCommunityConfig:
		p = &ConfigPayload{}
	case TypeChannelCreated:
		p = &ChannelCreatedPayload{}
	case TypeChannelUpdated:
		p = &ChannelUpdatedPayload{}
	case TypeChannelArchived:
		p = &ChannelArchivedPayload{}
	case TypeCommunityRole:
		p = &RolePayload{}
	case TypeAnnouncement:
		p = &AnnouncementPayload{}
	case TypeModeration:
		p = &ModerationPayload{}
	case TypeSnapshot:
		p = &SnapshotPayload{}
	default:
		return nil, nil, invalid("type", "unknown event type %q", ev.Type)
	}
	if err := json.Unmarshal(ev.Payload, p); err != nil {
		return nil, nil, invalid("payload", "unmarshal %s: %v", ev.Type, err)
	}
	if err := validatePayload(p); err != nil {
		return nil, nil, err
	}
	return &ev, p, nil
}

// EncodeMessage marshals a chat message after bounding its fields.
func EncodeMessage(m *models.Message) ([]byte, error) {
	if err := validateMessage(m); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// DecodeMessage parses a wire chat message, enforcing the 512 KB ceiling and
// per-field bounds.
func DecodeMessage(data []byte) (*models.Message, error) {
	if len(data) > MaxMessageBytes {
		return nil, invalid("message", "encoded size %d exceeds %d", len(data), MaxMessageBytes)
	}
	var m models.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, invalid("message", "unmarshal: %v", err)
	}
	if err := validateMessage(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func validateMessage(m *models.Message) error {
	if err := checkID("message_id", m.ID); err != nil {
		return err
	}
	if err := checkID("channel_id", m.ChannelID); err != nil {
		return err
	}
	if err := checkID("sender", m.Sender); err != nil {
		return err
	}
	if len(m.Text) > MaxTextLen {
		return invalid("text", "length %d exceeds %d", len(m.Text), MaxTextLen)
	}
	if len(m.ParentIDs) > MaxParents {
		return invalid("parent_ids", "%d parents exceeds %d", len(m.ParentIDs), MaxParents)
	}
	if len(m.Quotes) > MaxQuotes {
		return invalid("quotes", "%d quotes exceeds %d", len(m.Quotes), MaxQuotes)
	}
	for _, pid := range m.ParentIDs {
		if err := checkID("parent_ids", pid); err != nil {
			return err
		}
	}
	for _, q := range m.Quotes {
		if err := checkID("quotes.message_id", q.MessageID); err != nil {
			return err
		}
		if len(q.Text) > MaxTextLen {
			return invalid("quotes.text", "length %d exceeds %d", len(q.Text), MaxTextLen)
		}
	}
	if err := checkOptID("edit_of", m.EditOf); err != nil {
		return err
	}
	return checkOptID("delete_of", m.DeleteOf)
}

func validatePayload(p Payload) error {
	switch v := p.(type) {
	case *ConfigPayload:
		if v.Name != nil && len(*v.Name) > MaxNameLen {
			return invalid("name", "length %d exceeds %d", len(*v.Name), MaxNameLen)
		}
		if v.Description != nil && len(*v.Description) > MaxDescLen {
			return invalid("description", "length %d exceeds %d", len(*v.Description), MaxDescLen)
		}
		if v.DefaultPermission != nil && !v.DefaultPermission.Valid() {
			return invalid("default_permission", "unknown permission %q", *v.DefaultPermission)
		}
	case *ChannelCreatedPayload:
		if err := checkID("channel_id", v.ChannelID); err != nil {
			return err
		}
		if err := checkName("name", v.Name); err != nil {
			return err
		}
		if len(v.Description) > MaxDescLen {
			return invalid("description", "length %d exceeds %d", len(v.Description), MaxDescLen)
		}
		if err := checkOptID("group_ref", v.GroupRef); err != nil {
			return err
		}
		if !v.Permission.Valid() {
			return invalid("permission", "unknown permission %q", v.Permission)
		}
	case *ChannelUpdatedPayload:
		if err := checkID("channel_id", v.ChannelID); err != nil {
			return err
		}
		if v.Name != nil {
			if err := checkName("name", *v.Name); err != nil {
				return err
			}
		}
		if v.Description != nil && len(*v.Description) > MaxDescLen {
			return invalid("description", "length %d exceeds %d", len(*v.Description), MaxDescLen)
		}
		if v.Permission != nil && !v.Permission.Valid() {
			return invalid("permission", "unknown permission %q", *v.Permission)
		}
	case *ChannelArchivedPayload:
		return checkID("channel_id", v.ChannelID)
	case *RolePayload:
		if err := checkID("target", v.Target); err != nil {
			return err
		}
		if !v.Role.Valid() {
			return invalid("role", "unknown role %q", v.Role)
		}
	case *AnnouncementPayload:
		if len(v.Text) > MaxDescLen {
			return invalid("text", "length %d exceeds %d", len(v.Text), MaxDescLen)
		}
	case *ModerationPayload:
		switch v.Action {
		case ActionBan, ActionUnban, ActionMute:
			return checkID("target", v.Target)
		case ActionRedact:
			return checkID("target_message_id", v.TargetMessageID)
		default:
			return invalid("action", "unknown moderation action %q", v.Action)
		}
	case *SnapshotPayload:
		return validateSnapshot(v)
	default:
		return invalid("payload", "unknown payload type %T", p)
	}
	return nil
}

func validateSnapshot(s *SnapshotPayload) error {
	if len(s.Channels) > MaxSnapshotChannels {
		return invalid("channels", "%d channels exceeds %d", len(s.Channels), MaxSnapshotChannels)
	}
	if len(s.Roles) > MaxSnapshotRoles {
		return invalid("roles", "%d roles exceeds %d", len(s.Roles), MaxSnapshotRoles)
	}
	if len(s.Bans) > MaxSnapshotBans {
		return invalid("bans", "%d bans exceeds %d", len(s.Bans), MaxSnapshotBans)
	}
	for _, ch := range s.Channels {
		if err := checkID("channels.channel_id", ch.ID); err != nil {
			return err
		}
		if err := checkName("channels.name", ch.Name); err != nil {
			return err
		}
		if len(ch.Description) > MaxDescLen {
			return invalid("channels.description", "length %d exceeds %d", len(ch.Description), MaxDescLen)
		}
		if !ch.Permission.Valid() {
			return invalid("channels.permission", "unknown permission %q", ch.Permission)
		}
	}
	for _, r := range s.Roles {
		if err := checkID("roles.identity", r.Identity); err != nil {
			return err
		}
		if !r.Role.Valid() {
			return invalid("roles.role", "unknown role %q", r.Role)
		}
	}
	for _, b := range s.Bans {
		if err := checkID("bans", b); err != nil {
			return err
		}
	}
	return nil
}

func checkID(field, id string) error {
	if id == "" {
		return invalid(field, "missing")
	}
	if len(id) > MaxIDLen {
		return invalid(field, "length %d exceeds %d", len(id), MaxIDLen)
	}
	return nil
}

func checkOptID(field, id string) error {
	if id == "" {
		return nil
	}
	return checkID(field, id)
}

func checkName(field, name string) error {
	if name == "" {
		return invalid(field, "missing")
	}
	if len(name) > MaxNameLen {
		return invalid(field, "length %d exceeds %d", len(name), MaxNameLen)
	}
	return nil
}
