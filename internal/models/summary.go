package models

import "time"

// Summary is the per-counterpart conversation row shown in a chat list:
// the other user's display info, the latest message preview and the
// number of received, unread messages. IsOnline is a projection from the
// presence set, never persisted.
type Summary struct {
	CounterpartID int       `db:"counterpart_id" json:"counterpart_id"`
	Name          string    `db:"name" json:"name"`
	AvatarID      int       `db:"avatar_id" json:"avatar_id"`
	LastMessage   string    `db:"last_message" json:"last_message"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
	UnreadCount   int       `db:"unread_count" json:"unread_count"`
	IsOnline      bool      `db:"-" json:"is_online"`
}
