package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"logitalk/internal/models"
)

// ErrAuthentication is returned when the server refuses the credential
// at connect time. It is terminal: the owning application must obtain a
// fresh token before reconnecting.
var ErrAuthentication = errors.New("channel authentication failed")

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Socket maintains the persistent channel to the server: it dials,
// authenticates, dispatches inbound events into the engine and queue,
// and reconnects with capped backoff after transient drops.
type Socket struct {
	url    string
	token  string
	engine *Engine
	queue  *Queue
	log    *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewSocket constructs a socket for the given ws URL and bearer token.
func NewSocket(url, token string, log *zap.Logger) *Socket {
	return &Socket{url: url, token: token, log: log}
}

// Bind attaches the engine and queue the read loop dispatches into.
func (s *Socket) Bind(engine *Engine, queue *Queue) {
	s.engine = engine
	s.queue = queue
}

// Run connects and serves the channel until the context is canceled or
// authentication fails. Transient disconnects trigger reconnection;
// queued sends are flushed in order on every successful (re)connect.
func (s *Socket) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, s.url+"?token="+s.token, nil)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return ErrAuthentication
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("ws dial failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = initialBackoff

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		s.queue.SetConnected(true)
		_ = s.write(models.Event{Type: models.EventGetOnlineUsers})

		s.readLoop(ctx, conn)

		s.queue.SetConnected(false)
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Info("ws disconnected, reconnecting")
	}
}

// Send transmits a message event. Implements Sender for the queue.
func (s *Socket) Send(to int, text, tmpID string) error {
	return s.write(models.Event{Type: models.EventSend, To: to, Text: text, TmpID: tmpID})
}

// MarkRead transmits a read acknowledgment. Implements ReadAcker.
func (s *Socket) MarkRead(counterpartID int) error {
	return s.write(models.Event{Type: models.EventMarkRead, CounterpartID: counterpartID})
}

func (s *Socket) write(event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("not connected")
	}
	return s.conn.WriteJSON(event)
}

func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var event models.Event
		if err := conn.ReadJSON(&event); err != nil {
			return
		}

		switch event.Type {
		case models.EventMessage:
			if event.Message == nil {
				continue
			}
			s.engine.HandleDelivered(*event.Message, event.TmpID)
			if event.TmpID != "" {
				s.queue.Ack(event.TmpID)
			}
		case models.EventSendFailed:
			s.queue.Fail(event.TmpID)
		case models.EventMessagesRead:
			s.engine.HandleRead(event.ReaderID)
		case models.EventUserOnline:
			s.engine.HandleOnline(event.UserID)
		case models.EventUserOffline:
			s.engine.HandleOffline(event.UserID)
		case models.EventOnlineUsers:
			s.engine.HandleSnapshot(event.UserIDs)
		default:
			s.log.Debug("unknown ws event", zap.String("type", event.Type))
		}
	}
}
