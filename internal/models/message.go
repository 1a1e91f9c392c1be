package models

// Quote carries an inline quotation of another message.
type Quote struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text,omitempty"`
}

// Message is one chat message row. Rows are immutable: an edit or delete is a
// new message referencing the original via EditOf/DeleteOf, never an in-place
// mutation. ParentIDs are multi-parent reply edges; senders are untrusted, so
// the stored relation may contain cycles and readers must tolerate them.
type Message struct {
	ID        string   `json:"message_id"`
	ChannelID string   `json:"channel_id"`
	Sender    string   `json:"sender"`
	Text      string   `json:"text"`
	EditOf    string   `json:"edit_of,omitempty"`
	DeleteOf  string   `json:"delete_of,omitempty"`
	Redacted  bool     `json:"redacted,omitempty"`
	CreatedAt int64    `json:"created_at"` // unix micro
	ParentIDs []string `json:"parent_ids,omitempty"`
	Quotes    []Quote  `json:"quotes,omitempty"`
}

// Profile maps a public identity to a display handle and a transport inbox.
type Profile struct {
	Identity string `json:"identity"`
	Handle   string `json:"handle,omitempty"`
	Inbox    string `json:"inbox,omitempty"`
}
