package ws

import "sync"

// Presence is the registry of active connections, one per user. It is
// the sole source of truth for online status; nothing infers presence
// from message activity.
type Presence struct {
	mu    sync.RWMutex
	conns map[int]*Client
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{conns: make(map[int]*Client)}
}

// Register binds the connection to the user, replacing any prior one.
// The previous handle is returned so the caller can evict it; newest
// connection wins.
func (p *Presence) Register(userID int, c *Client) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.conns[userID]
	p.conns[userID] = c
	return prev
}

// Unregister removes the entry only while it still points at c, so a
// stale disconnect can never evict a newer connection. Reports whether
// an entry was removed.
func (p *Presence) Unregister(userID int, c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conns[userID] != c {
		return false
	}
	delete(p.conns, userID)
	return true
}

// IsOnline reports whether the user has an active connection.
func (p *Presence) IsOnline(userID int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.conns[userID]
	return ok
}

// Get returns the user's active connection, if any.
func (p *Presence) Get(userID int) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.conns[userID]
	return c, ok
}

// Snapshot returns the ids of all online users.
func (p *Presence) Snapshot() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]int, 0, len(p.conns))
	for id := range p.conns {
		ids = append(ids, id)
	}
	return ids
}

// Clients returns every active connection.
func (p *Presence) Clients() []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	clients := make([]*Client, 0, len(p.conns))
	for _, c := range p.conns {
		clients = append(clients, c)
	}
	return clients
}
