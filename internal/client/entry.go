// Package client implements the LogiTalk client engine: the optimistic
// message pipeline, the outbound queue and the socket that binds them
// to a server.
package client

import "time"

// Role marks whose message an entry is, relative to the local user.
type Role string

const (
	RoleMe   Role = "me"
	RoleThem Role = "them"
)

// EntryState is the lifecycle phase of a conversation entry.
type EntryState int

const (
	// EntryPending is a locally created message not yet confirmed by
	// the store.
	EntryPending EntryState = iota
	// EntryDelivered carries the canonical store-assigned id and
	// timestamp.
	EntryDelivered
	// EntryFailed is a send that exhausted its retries. It stays
	// visible so the user can see which message did not go through.
	EntryFailed
)

// Entry is one message in the open conversation. A pending entry has
// only a TmpID; confirmation replaces it in place with the canonical
// id and timestamp, never as a second entry.
type Entry struct {
	State     EntryState
	ID        int
	TmpID     string
	Role      Role
	Text      string
	CreatedAt time.Time
	Read      bool
}
