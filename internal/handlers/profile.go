package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"logitalk/internal/repositories"
)

const avatarURLPrefix = "/assets/avatars/"

// ProfileHandler serves the avatar catalogue and avatar selection.
type ProfileHandler struct {
	users     repositories.UserRepository
	avatarDir string
}

// NewProfileHandler builds a ProfileHandler.
func NewProfileHandler(users repositories.UserRepository, avatarDir string) *ProfileHandler {
	return &ProfileHandler{users: users, avatarDir: avatarDir}
}

// Avatars lists the numeric ids of available avatar images, scanned
// from the avatar directory ("3.png" -> 3).
func (h *ProfileHandler) Avatars(c *gin.Context) {
	files, err := os.ReadDir(h.avatarDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to load avatars"})
		return
	}

	ids := make([]int, 0, len(files))
	for _, f := range files {
		if n, err := strconv.Atoi(stripExt(f.Name())); err == nil {
			ids = append(ids, n)
		}
	}
	sort.Ints(ids)

	c.JSON(http.StatusOK, gin.H{"avatars": ids})
}

// SetAvatar stores the chosen avatar id and returns its public URL.
func (h *ProfileHandler) SetAvatar(c *gin.Context) {
	var req struct {
		AvatarID *int `json:"avatarId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AvatarID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatarId (number) is required"})
		return
	}

	userID := c.GetInt("userID")
	if err := h.users.SetAvatar(c.Request.Context(), userID, *req.AvatarID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not set avatar"})
		return
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	avatarURL := fmt.Sprintf("%s://%s%s%d.png", scheme, c.Request.Host, avatarURLPrefix, *req.AvatarID)
	c.JSON(http.StatusOK, gin.H{"avatarUrl": avatarURL})
}

func stripExt(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i]
		}
	}
	return name
}
