package ws

import (
	"sync"

	"logitalk/internal/models"
)

// Hub routes events to user-scoped connections and owns the presence
// lifecycle. Join and Leave perform the registry swap and the resulting
// online/offline broadcast under one lock, so no other presence change
// can interleave between the two and be observed as a flicker.
type Hub struct {
	mu       sync.Mutex
	presence *Presence
}

// NewHub creates a hub with its own presence registry.
func NewHub() *Hub {
	return &Hub{presence: NewPresence()}
}

// Join registers the connection, evicts any previous one for the same
// user and broadcasts the online event.
func (h *Hub) Join(userID int, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.presence.Register(userID, c)
	if prev != nil {
		prev.Close()
	}
	h.broadcastLocked(models.Event{Type: models.EventUserOnline, UserID: userID})
}

// Leave unregisters the connection if it is still the user's active one
// and broadcasts the offline event. Reports whether presence changed;
// duplicate disconnect signals are absorbed here.
func (h *Hub) Leave(userID int, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.presence.Unregister(userID, c) {
		return false
	}
	h.broadcastLocked(models.Event{Type: models.EventUserOffline, UserID: userID})
	return true
}

// ToUser delivers an event to the user's active connection. Reports
// whether the user had one.
func (h *Hub) ToUser(userID int, event models.Event) bool {
	c, ok := h.presence.Get(userID)
	if !ok {
		return false
	}
	return c.Enqueue(event)
}

// BroadcastAll sends an event to every active connection.
func (h *Hub) BroadcastAll(event models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(event)
}

// IsOnline reports presence for one user.
func (h *Hub) IsOnline(userID int) bool {
	return h.presence.IsOnline(userID)
}

// Snapshot returns the ids of all online users.
func (h *Hub) Snapshot() []int {
	return h.presence.Snapshot()
}

func (h *Hub) broadcastLocked(event models.Event) {
	for _, c := range h.presence.Clients() {
		c.Enqueue(event)
	}
}
