package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"logitalk/internal/auth"
	"logitalk/internal/mocks"
	"logitalk/internal/models"
)

func setupGatewayServer(t *testing.T, users *mocks.UserRepositoryMock, messages *mocks.MessageRepositoryMock) (*httptest.Server, *Hub, *auth.Tokens) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	tokens := auth.NewTokens("access-secret", "refresh-secret", time.Hour, time.Hour)
	gateway := NewGateway(hub, users, messages, tokens, zap.NewNop())

	r := gin.New()
	r.GET("/ws", gateway.Handle)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub, tokens
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn, wantType string) models.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var event models.Event
		require.NoError(t, conn.ReadJSON(&event))
		if event.Type == wantType {
			return event
		}
	}
}

// awaitOnline reads until the given user's join broadcast arrives, so
// the test knows the user is registered before routing to them.
func awaitOnline(t *testing.T, conn *websocket.Conn, userID int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var event models.Event
		require.NoError(t, conn.ReadJSON(&event))
		if event.Type == models.EventUserOnline && event.UserID == userID {
			return
		}
	}
}

func TestGatewayRejectsInvalidToken(t *testing.T) {
	srv, _, _ := setupGatewayServer(t, new(mocks.UserRepositoryMock), new(mocks.MessageRepositoryMock))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGatewaySendDeliversToBothParties(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	srv, _, tokens := setupGatewayServer(t, users, messages)

	users.On("GetByID", mock.Anything, 1).Return(models.User{ID: 1, Name: "alice", AvatarID: 3}, nil)
	users.On("GetByID", mock.Anything, 2).Return(models.User{ID: 2, Name: "bob"}, nil)

	stored := models.Message{ID: 42, SenderID: 1, ReceiverID: 2, Body: "hello", CreatedAt: time.Now()}
	messages.On("Create", mock.Anything, 1, 2, "hello").Return(stored, nil).Once()

	alicePair, err := tokens.Issue(1, "alice@example.com")
	require.NoError(t, err)
	bobPair, err := tokens.Issue(2, "bob@example.com")
	require.NoError(t, err)

	alice := dialWS(t, srv, alicePair.AccessToken)
	bob := dialWS(t, srv, bobPair.AccessToken)

	// Bob's join broadcast on Alice's socket confirms he is registered.
	awaitOnline(t, alice, 2)

	require.NoError(t, alice.WriteJSON(models.Event{Type: models.EventSend, To: 2, Text: "  hello  ", TmpID: "t-1"}))

	// Receiver gets the canonical message with no tmp id.
	got := readEvent(t, bob, models.EventMessage)
	require.NotNil(t, got.Message)
	require.Equal(t, 42, got.Message.ID)
	require.Equal(t, "hello", got.Message.Body)
	require.Equal(t, "alice", got.Message.SenderName)
	require.Empty(t, got.TmpID)

	// Sender gets the same message with the tmp id echoed back.
	echo := readEvent(t, alice, models.EventMessage)
	require.NotNil(t, echo.Message)
	require.Equal(t, 42, echo.Message.ID)
	require.Equal(t, "t-1", echo.TmpID)

	messages.AssertExpectations(t)
}

func TestGatewaySendValidationFailureAck(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	srv, _, tokens := setupGatewayServer(t, users, messages)

	users.On("GetByID", mock.Anything, 1).Return(models.User{ID: 1, Name: "alice"}, nil)

	pair, err := tokens.Issue(1, "alice@example.com")
	require.NoError(t, err)
	alice := dialWS(t, srv, pair.AccessToken)

	require.NoError(t, alice.WriteJSON(models.Event{Type: models.EventSend, To: 2, Text: "   ", TmpID: "t-9"}))

	failed := readEvent(t, alice, models.EventSendFailed)
	require.Equal(t, "t-9", failed.TmpID)
	require.NotEmpty(t, failed.Error)
	messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGatewaySendPersistenceFailureAck(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	srv, _, tokens := setupGatewayServer(t, users, messages)

	users.On("GetByID", mock.Anything, 1).Return(models.User{ID: 1, Name: "alice"}, nil)
	users.On("GetByID", mock.Anything, 2).Return(models.User{ID: 2, Name: "bob"}, nil)
	messages.On("Create", mock.Anything, 1, 2, "hi").Return(models.Message{}, assert.AnError).Once()

	pair, err := tokens.Issue(1, "alice@example.com")
	require.NoError(t, err)
	alice := dialWS(t, srv, pair.AccessToken)

	require.NoError(t, alice.WriteJSON(models.Event{Type: models.EventSend, To: 2, Text: "hi", TmpID: "t-2"}))

	failed := readEvent(t, alice, models.EventSendFailed)
	require.Equal(t, "t-2", failed.TmpID)
	messages.AssertExpectations(t)
}

func TestGatewayMarkReadNotifiesCounterpart(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	srv, _, tokens := setupGatewayServer(t, users, messages)

	users.On("GetByID", mock.Anything, 1).Return(models.User{ID: 1, Name: "alice"}, nil)
	users.On("GetByID", mock.Anything, 2).Return(models.User{ID: 2, Name: "bob"}, nil)
	messages.On("MarkRead", mock.Anything, 1, 2).Return(int64(3), nil).Once()

	alicePair, err := tokens.Issue(1, "alice@example.com")
	require.NoError(t, err)
	bobPair, err := tokens.Issue(2, "bob@example.com")
	require.NoError(t, err)

	alice := dialWS(t, srv, alicePair.AccessToken)
	bob := dialWS(t, srv, bobPair.AccessToken)

	awaitOnline(t, alice, 2)

	require.NoError(t, alice.WriteJSON(models.Event{Type: models.EventMarkRead, CounterpartID: 2}))

	got := readEvent(t, bob, models.EventMessagesRead)
	require.Equal(t, 1, got.ReaderID)
	messages.AssertExpectations(t)
}

func TestGatewayOnlineSnapshot(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	srv, _, tokens := setupGatewayServer(t, users, messages)

	users.On("GetByID", mock.Anything, 1).Return(models.User{ID: 1, Name: "alice"}, nil)
	users.On("GetByID", mock.Anything, 2).Return(models.User{ID: 2, Name: "bob"}, nil)

	alicePair, err := tokens.Issue(1, "alice@example.com")
	require.NoError(t, err)
	bobPair, err := tokens.Issue(2, "bob@example.com")
	require.NoError(t, err)

	bob := dialWS(t, srv, bobPair.AccessToken)
	dialWS(t, srv, alicePair.AccessToken)

	// Alice's join is broadcast to every connection, so seeing it on
	// Bob's socket means she is in the registry.
	awaitOnline(t, bob, 1)

	require.NoError(t, bob.WriteJSON(models.Event{Type: models.EventGetOnlineUsers}))

	got := readEvent(t, bob, models.EventOnlineUsers)
	require.ElementsMatch(t, []int{1, 2}, got.UserIDs)
}
