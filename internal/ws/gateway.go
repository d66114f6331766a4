package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"logitalk/internal/auth"
	"logitalk/internal/models"
	"logitalk/internal/observability"
	"logitalk/internal/repositories"
)

// Gateway authenticates websocket connections, binds them to the hub
// and relays send / mark-read / presence traffic.
type Gateway struct {
	hub      *Hub
	users    repositories.UserRepository
	messages repositories.MessageRepository
	tokens   *auth.Tokens
	log      *zap.Logger
}

// NewGateway constructs a Gateway.
func NewGateway(hub *Hub, users repositories.UserRepository, messages repositories.MessageRepository, tokens *auth.Tokens, log *zap.Logger) *Gateway {
	return &Gateway{hub: hub, users: users, messages: messages, tokens: tokens, log: log}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, authenticates it and runs the read
// loop until disconnect. An invalid credential is terminal for the
// attempt: the connection is refused, never silently retried here.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("logitalk/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	token := bearerToken(c)
	userID, err := g.tokens.VerifyAccess(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	// The sender's display fields ride along on delivery events so a
	// first-time receiver can build a conversation row without another
	// round trip.
	self, err := g.users.GetByID(ctx, userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := newClient(userID, conn)
	client.ip = observability.IPFromRequest(c.Request)
	client.deviceID = observability.DeviceIDFromRequest(c.Request)
	go client.writePump()
	g.hub.Join(userID, client)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	g.publishLifecycle(ctx, "ws_connect", client, "")
	g.log.Info("ws connected", zap.Int("user_id", userID), zap.String("conn_id", client.ConnID))

	g.readLoop(ctx, self, client)
}

func (g *Gateway) readLoop(ctx context.Context, self models.User, client *Client) {
	var closeReason string
	defer func() {
		g.hub.Leave(client.UserID, client)
		client.Close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		g.publishLifecycle(ctx, "ws_disconnect", client, closeReason)
		g.log.Info("ws disconnected", zap.Int("user_id", client.UserID), zap.String("conn_id", client.ConnID), zap.String("reason", closeReason))
	}()

	for {
		var event models.Event
		if err := client.conn.ReadJSON(&event); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}

		switch event.Type {
		case models.EventSend:
			g.handleSend(ctx, self, client, event)
		case models.EventMarkRead:
			g.handleMarkRead(ctx, client, event)
		case models.EventGetOnlineUsers:
			client.Enqueue(models.Event{Type: models.EventOnlineUsers, UserIDs: g.hub.Snapshot()})
		default:
			g.log.Debug("unknown ws event", zap.String("type", event.Type), zap.Int("user_id", client.UserID))
		}
	}
}

// handleSend validates, persists and relays one message. Failures are
// answered with an explicit ack carrying the client's tmp id; the
// message is never dropped silently.
func (g *Gateway) handleSend(ctx context.Context, self models.User, client *Client, event models.Event) {
	observability.IncWSEvent("send")

	body := strings.TrimSpace(event.Text)
	if body == "" || event.To == 0 || event.To == client.UserID {
		g.failSend(client, event.TmpID, "invalid message", "validation")
		return
	}

	if _, err := g.users.GetByID(ctx, event.To); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			g.failSend(client, event.TmpID, "unknown recipient", "validation")
		} else {
			g.failSend(client, event.TmpID, "recipient lookup failed", "persistence")
		}
		return
	}

	msg, err := g.messages.Create(ctx, client.UserID, event.To, body)
	if err != nil {
		g.log.Error("persist message failed", zap.Error(err), zap.Int("user_id", client.UserID))
		g.failSend(client, event.TmpID, "could not store message", "persistence")
		return
	}
	msg.SenderName = self.Name
	msg.SenderAvatar = self.AvatarID

	// Canonical event goes to both parties: the receiver appends it,
	// the sender reconciles its pending entry via the echoed tmp id.
	receiverCopy := msg
	g.hub.ToUser(event.To, models.Event{Type: models.EventMessage, Message: &receiverCopy})

	senderCopy := msg
	client.Enqueue(models.Event{Type: models.EventMessage, Message: &senderCopy, TmpID: event.TmpID})

	observability.IncMessageSent()
}

func (g *Gateway) handleMarkRead(ctx context.Context, client *Client, event models.Event) {
	observability.IncWSEvent("mark_read")
	if event.CounterpartID == 0 {
		return
	}

	if _, err := g.messages.MarkRead(ctx, client.UserID, event.CounterpartID); err != nil {
		g.log.Error("mark read failed", zap.Error(err), zap.Int("user_id", client.UserID))
		return
	}

	// The counterpart (and only the counterpart) learns its sent
	// messages were read.
	g.hub.ToUser(event.CounterpartID, models.Event{Type: models.EventMessagesRead, ReaderID: client.UserID})
}

func (g *Gateway) failSend(client *Client, tmpID, reason, kind string) {
	observability.IncSendFailure(kind)
	client.Enqueue(models.Event{Type: models.EventSendFailed, TmpID: tmpID, Error: reason})
}

func (g *Gateway) publishLifecycle(ctx context.Context, name string, client *Client, reason string) {
	_ = observability.PublishEvent(ctx, "ws_events", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"conn_id":     client.ConnID,
			"user_id":     client.UserID,
			"ip":          client.ip,
			"device_id":   client.deviceID,
			"duration_ms": time.Since(client.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
	})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}
