package hub

import "time"

type EventType string

const (
	EventMessageCreated    EventType = "message.created"
	EventMessageUpdated    EventType = "message.updated"
	EventReactionChanged   EventType = "reaction.changed"
	EventPresenceChanged   EventType = "presence.changed"
	EventTypingChanged     EventType = "typing.changed"
	EventMembershipChanged EventType = "membership.changed"
	EventSubscribed        EventType = "subscribed"
	EventError             EventType = "error"
)

// Event is what the server pushes to subscribed sessions.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type Event struct {
	Type    EventType `json:"type"`
	RoomID  string    `json:"room_id,omitempty"`
	Payload any       `json:"payload,omitempty"`
}

// Frame is what a session sends to the server over the socket. Writes go
// through the HTTP API; the socket carries only the subscription protocol.
type Frame struct {
	Type   string `json:"type"` // subscribe | unsubscribe | typing | heartbeat
	RoomID string `json:"room_id,omitempty"`
	Typing bool   `json:"typing,omitempty"`
}

// MessageUpdatedPayload is broadcast when a message is edited.
type MessageUpdatedPayload struct {
	MessageID string    `json:"message_id"`
	RoomID    string    `json:"room_id"`
	Content   string    `json:"content"`
	EditedAt  time.Time `json:"edited_at"`
}

// ReactionChangedPayload is broadcast when a reaction is added or removed.
type ReactionChangedPayload struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
	Added     bool   `json:"added"`
}

// TypingChangedPayload is broadcast when a user starts or stops typing.
type TypingChangedPayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	Typing bool   `json:"typing"`
}

// PresenceChangedPayload is broadcast on online/offline transitions.
type PresenceChangedPayload struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// MembershipChangedPayload is broadcast when a membership edge changes.
type MembershipChangedPayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	Action string `json:"action"` // joined | left | removed | role_changed
	Role   string `json:"role,omitempty"`
}
