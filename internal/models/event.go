package models

// EventType names an event pushed to a session.
type EventType string

const (
	EventMessageReceived         EventType = "message_received"
	EventReadStatusUpdated       EventType = "read_status_updated"
	EventModerationStatusChanged EventType = "moderation_status_changed"
	EventRemovedFromGroup        EventType = "removed_from_group"
)

// GroupEvent is emitted to websocket sessions.
type GroupEvent struct {
	Type       EventType        `json:"type"`
	GroupID    int64            `json:"group_id,omitempty"`
	Message    *Message         `json:"message,omitempty"`
	SelfOnly   bool             `json:"self_only,omitempty"`
	UserID     string           `json:"user_id,omitempty"`
	Action     ModerationAction `json:"action,omitempty"`
	Membership *Membership      `json:"membership,omitempty"`
	Receipt    *ReadReceipt     `json:"receipt,omitempty"`
}

// ReadReceipt reports who has read a message without repeating its content.
type ReadReceipt struct {
	MessageID int64   `json:"message_id"`
	GroupID   int64   `json:"group_id"`
	ReadBy    ReadSet `json:"read_by"`
}
