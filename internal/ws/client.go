package ws

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"logitalk/internal/models"
)

const sendBuffer = 64

// Client wraps one authenticated websocket connection. All outbound
// writes go through the send channel so only the write pump touches the
// conn.
type Client struct {
	ConnID      string
	UserID      int
	ConnectedAt time.Time

	// connection metadata carried into lifecycle events
	ip       string
	deviceID string

	conn *websocket.Conn
	send chan models.Event

	mu     sync.Mutex
	closed bool
}

func newClient(userID int, conn *websocket.Conn) *Client {
	return &Client{
		ConnID:      newConnID(),
		UserID:      userID,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan models.Event, sendBuffer),
	}
}

// writePump drains the send channel onto the wire. It exits when the
// channel is closed or a write fails, closing the conn either way.
func (c *Client) writePump() {
	defer c.conn.Close()
	for event := range c.send {
		if err := c.conn.WriteJSON(event); err != nil {
			return
		}
	}
}

// Enqueue hands an event to the write pump. A full buffer or a closed
// client drops the event and reports false; the reader on the other end
// is expected to resync over HTTP after reconnecting.
func (c *Client) Enqueue(event models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// Close shuts down the write pump. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
