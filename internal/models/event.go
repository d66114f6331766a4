package models

// Event types carried over the websocket channel, both directions.
const (
	EventSend           = "send"
	EventMessage        = "message_delivered"
	EventSendFailed     = "send_failed"
	EventMarkRead       = "mark_read"
	EventMessagesRead   = "messages_read"
	EventUserOnline     = "user_online"
	EventUserOffline    = "user_offline"
	EventGetOnlineUsers = "get_online_users"
	EventOnlineUsers    = "online_users"
)

// Event is the tagged envelope exchanged over websocket connections.
// Type selects the variant; only the fields of that variant are set.
type Event struct {
	Type string `json:"type"`

	// send (client -> server)
	To    int    `json:"to,omitempty"`
	Text  string `json:"text,omitempty"`
	TmpID string `json:"tmp_id,omitempty"`

	// message_delivered; TmpID is echoed back on the sender's copy only
	Message *Message `json:"message,omitempty"`

	// send_failed
	Error string `json:"error,omitempty"`

	// mark_read
	CounterpartID int `json:"counterpart_id,omitempty"`

	// messages_read
	ReaderID int `json:"reader_id,omitempty"`

	// user_online / user_offline
	UserID int `json:"user_id,omitempty"`

	// online_users
	UserIDs []int `json:"user_ids,omitempty"`
}
