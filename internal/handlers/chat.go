package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"logitalk/internal/models"
	"logitalk/internal/repositories"
	"logitalk/internal/ws"
)

// ChatHandler serves conversation summaries, history and the HTTP
// mirror of the mark-read operation.
type ChatHandler struct {
	users    repositories.UserRepository
	messages repositories.MessageRepository
	hub      *ws.Hub
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(users repositories.UserRepository, messages repositories.MessageRepository, hub *ws.Hub) *ChatHandler {
	return &ChatHandler{users: users, messages: messages, hub: hub}
}

// ListSummaries returns one conversation row per counterpart, newest
// first, with the online flag projected from the presence registry.
func (h *ChatHandler) ListSummaries(c *gin.Context) {
	userID := c.GetInt("userID")

	summaries, err := h.messages.Summaries(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	for i := range summaries {
		summaries[i].IsOnline = h.hub.IsOnline(summaries[i].CounterpartID)
	}

	c.JSON(http.StatusOK, gin.H{"chats": summaries})
}

// GetHistory returns the full ordered message history with one user.
func (h *ChatHandler) GetHistory(c *gin.Context) {
	otherID, ok := counterpartParam(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	if _, err := h.users.GetByID(c.Request.Context(), otherID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	msgs, err := h.messages.History(c.Request.Context(), userID, otherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// StartChat returns a conversation row for a user with no message
// history yet; nothing is persisted until the first message.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if req.UserID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	other, err := h.users.GetByID(c.Request.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat": models.Summary{
		CounterpartID: other.ID,
		Name:          other.Name,
		AvatarID:      other.AvatarID,
		LastMessageAt: time.Now(),
		IsOnline:      h.hub.IsOnline(other.ID),
	}})
}

// MarkRead is the HTTP mirror of the socket mark_read operation, used
// when a conversation is opened regardless of socket state. The
// counterpart is notified over its socket, if connected.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	otherID, ok := counterpartParam(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	if _, err := h.messages.MarkRead(c.Request.Context(), userID, otherID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}

	h.hub.ToUser(otherID, models.Event{Type: models.EventMessagesRead, ReaderID: userID})
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

func counterpartParam(c *gin.Context) (int, bool) {
	otherID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil || otherID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return otherID, true
}
