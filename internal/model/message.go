package model

import "time"

// Message is an entry in a room's append-only log. Seq is the per-room
// ordering id assigned by the server at insert time; (CreatedAt, Seq) is
// the history order with Seq as the authoritative tie-break.
// Only Content and EditedAt are mutable, and only by the author.
type Message struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"room_id"`
	UserID    string      `json:"user_id"`
	Content   string      `json:"content"`
	Seq       int64       `json:"seq"`
	ReplyTo   *string     `json:"reply_to,omitempty"` // nil after target deletion
	EditedAt  *time.Time  `json:"edited_at,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	Author    *UserPublic `json:"author,omitempty"`
	Reactions []Reaction  `json:"reactions,omitempty"`
}

// Reaction is one (message, user, emoji) row; the triple is unique.
type Reaction struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionGroup is aggregated reaction info for display.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"` // user IDs
}
