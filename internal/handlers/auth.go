package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"logitalk/internal/auth"
	"logitalk/internal/email"
	"logitalk/internal/repositories"
	"logitalk/internal/telemetry"
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

const refreshCookie = "jid"

// AuthHandler manages registration, OTP verification and sessions.
type AuthHandler struct {
	users      repositories.UserRepository
	tokens     *auth.Tokens
	ledger     *auth.OTPLedger
	mailer     email.Mailer
	audit      *telemetry.AuditEmitter
	log        *zap.Logger
	refreshTTL time.Duration
	secure     bool
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(users repositories.UserRepository, tokens *auth.Tokens, ledger *auth.OTPLedger, mailer email.Mailer, audit *telemetry.AuditEmitter, log *zap.Logger, refreshTTL time.Duration, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		users:      users,
		tokens:     tokens,
		ledger:     ledger,
		mailer:     mailer,
		audit:      audit,
		log:        log,
		refreshTTL: refreshTTL,
		secure:     secureCookies,
	}
}

// Register starts a signup: the account is created only after the OTP
// is verified. Registering an email with a pending code re-sends a
// fresh code.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if !emailPattern.MatchString(req.Email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email format"})
		return
	}

	exists, err := h.users.EmailExists(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not check account"})
		return
	}
	if exists {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email already exists"})
		return
	}

	if req.Name == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and password are required"})
		return
	}

	otp, err := h.ledger.Begin(req.Email, req.Name, req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start registration"})
		return
	}

	if err := h.mailer.SendOTP(req.Email, req.Name, otp); err != nil {
		h.log.Error("send otp failed", zap.Error(err))
		h.ledger.Drop(req.Email)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send otp"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "registration started", requestIDFromContext(c), nil)
	c.JSON(http.StatusOK, gin.H{"message": "otp sent"})
}

// VerifyOTP confirms the code, creates the account and opens a session.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	entry, err := h.ledger.Verify(req.Email, strings.TrimSpace(req.OTP))
	if err != nil {
		status := http.StatusBadRequest
		var msg string
		switch {
		case errors.Is(err, auth.ErrNoPendingRegistration):
			msg = "no otp requested"
		case errors.Is(err, auth.ErrOTPExpired):
			msg = "otp expired"
		default:
			msg = "incorrect otp"
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(entry.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create account"})
		return
	}

	user, err := h.users.Create(c.Request.Context(), entry.Name, req.Email, string(hashed))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create account"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "account created", requestIDFromContext(c), &user.ID)
	h.openSession(c, user.ID, user.Email)
}

// Login authenticates by email and password.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load account"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "incorrect password"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "login", requestIDFromContext(c), &user.ID)
	h.openSession(c, user.ID, user.Email)
}

// Refresh rotates the token pair using the refresh cookie. The stored
// token must match: replacing it on every rotation revokes older ones.
func (h *AuthHandler) Refresh(c *gin.Context) {
	cookie, err := c.Cookie(refreshCookie)
	if err != nil || cookie == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no refresh token"})
		return
	}

	userID, err := h.tokens.VerifyRefresh(cookie)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid or expired refresh token"})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil || user.RefreshToken != cookie {
		c.JSON(http.StatusForbidden, gin.H{"error": "refresh token revoked"})
		return
	}

	h.openSession(c, user.ID, user.Email)
}

// Profile returns the authenticated user's account.
func (h *AuthHandler) Profile(c *gin.Context) {
	userID := c.GetInt("userID")
	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Search finds users by name.
func (h *AuthHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}

	users, err := h.users.SearchByName(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// Delete removes the account after confirming the password.
func (h *AuthHandler) Delete(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect password"})
		return
	}

	if err := h.users.Delete(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete account"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "account deleted", requestIDFromContext(c), &userID)
	c.JSON(http.StatusOK, gin.H{"message": "account deleted"})
}

func (h *AuthHandler) openSession(c *gin.Context, userID int, userEmail string) {
	pair, err := h.tokens.Issue(userID, userEmail)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens"})
		return
	}

	if err := h.users.SetRefreshToken(c.Request.Context(), userID, pair.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store session"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookie, pair.RefreshToken, int(h.refreshTTL.Seconds()), "/", "", h.secure, true)
	c.JSON(http.StatusOK, gin.H{"accessToken": pair.AccessToken})
}
