package models

import "time"

// Message is the canonical, store-assigned record of a chat message.
// ID and CreatedAt are authoritative only once the store has accepted
// the row; client-side copies carry provisional values until then.
type Message struct {
	ID         int       `db:"id" json:"id"`
	SenderID   int       `db:"sender_id" json:"sender_id"`
	ReceiverID int       `db:"receiver_id" json:"receiver_id"`
	Body       string    `db:"body" json:"body"`
	Read       bool      `db:"read" json:"read"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`

	// Display fields for the sender, populated on delivery events so a
	// receiver can build a conversation row for a first-time sender.
	SenderName   string `db:"-" json:"sender_name,omitempty"`
	SenderAvatar int    `db:"-" json:"sender_avatar,omitempty"`
}
