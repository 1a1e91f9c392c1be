package models

// ChannelState describes one chat channel inside a community. Archiving never
// deletes a channel; it stays addressable so history remains reachable.
type ChannelState struct {
	ID          string     `json:"channel_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	GroupRef    string     `json:"group_ref"`
	Category    string     `json:"category,omitempty"`
	Permission  Permission `json:"permission"`
	Archived    bool       `json:"archived"`
	CreatedAt   int64      `json:"created_at"` // unix micro
}
