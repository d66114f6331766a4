package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"logitalk/internal/auth"
	"logitalk/internal/mocks"
	"logitalk/internal/models"
)

func newAuthHandler(users *mocks.UserRepositoryMock, mailer *mocks.MailerMock) (*AuthHandler, *auth.OTPLedger, *auth.Tokens) {
	tokens := auth.NewTokens("access", "refresh", time.Hour, 7*24*time.Hour)
	ledger := auth.NewOTPLedger(5 * time.Minute)
	handler := NewAuthHandler(users, tokens, ledger, mailer, nil, zap.NewNop(), 7*24*time.Hour, false)
	return handler, ledger, tokens
}

func setupAuthRouter(handler *AuthHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/register", handler.Register)
	r.POST("/verify-otp", handler.VerifyOTP)
	r.POST("/login", handler.Login)
	r.POST("/refresh", handler.Refresh)
	r.GET("/search", handler.Search)
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/profile", handler.Profile)
	r.DELETE("/account", handler.Delete)
	return r
}

func TestRegisterSendsOTP(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	mailer := new(mocks.MailerMock)
	handler, _, _ := newAuthHandler(users, mailer)
	router := setupAuthRouter(handler)

	users.On("EmailExists", mock.Anything, "alice@example.com").Return(false, nil).Once()
	mailer.On("SendOTP", "alice@example.com", "alice", mock.AnythingOfType("string")).Return(nil).Once()

	body := bytes.NewBufferString(`{"name":"alice","email":"Alice@Example.com","password":"secret"}`)
	req := httptest.NewRequest(http.MethodPost, "/register", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	users.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestRegisterRejectsExistingEmail(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	mailer := new(mocks.MailerMock)
	handler, _, _ := newAuthHandler(users, mailer)
	router := setupAuthRouter(handler)

	users.On("EmailExists", mock.Anything, "taken@example.com").Return(true, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString(`{"name":"a","email":"taken@example.com","password":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	mailer.AssertNotCalled(t, "SendOTP", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterRejectsBadEmail(t *testing.T) {
	handler, _, _ := newAuthHandler(new(mocks.UserRepositoryMock), new(mocks.MailerMock))
	router := setupAuthRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString(`{"name":"a","email":"not-an-email","password":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterDropsPendingOnMailFailure(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	mailer := new(mocks.MailerMock)
	handler, ledger, _ := newAuthHandler(users, mailer)
	router := setupAuthRouter(handler)

	users.On("EmailExists", mock.Anything, "a@example.com").Return(false, nil).Once()
	mailer.On("SendOTP", "a@example.com", "a", mock.AnythingOfType("string")).Return(assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString(`{"name":"a","email":"a@example.com","password":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	_, err := ledger.Verify("a@example.com", "123456")
	require.ErrorIs(t, err, auth.ErrNoPendingRegistration)
}

func TestVerifyOTPCreatesAccountAndOpensSession(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	mailer := new(mocks.MailerMock)
	handler, ledger, tokens := newAuthHandler(users, mailer)
	router := setupAuthRouter(handler)

	otp, err := ledger.Begin("a@example.com", "alice", "secret")
	require.NoError(t, err)

	users.On("Create", mock.Anything, "alice", "a@example.com", mock.AnythingOfType("string")).
		Return(models.User{ID: 5, Name: "alice", Email: "a@example.com"}, nil).Once()
	users.On("SetRefreshToken", mock.Anything, 5, mock.AnythingOfType("string")).Return(nil).Once()

	body := bytes.NewBufferString(`{"email":"a@example.com","otp":"` + otp + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/verify-otp", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	userID, err := tokens.VerifyAccess(resp["accessToken"])
	require.NoError(t, err)
	require.Equal(t, 5, userID)

	// The session cookie carries the refresh token.
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	require.Equal(t, "jid", cookies[0].Name)
	users.AssertExpectations(t)
}

func TestVerifyOTPWrongCode(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler, ledger, _ := newAuthHandler(users, new(mocks.MailerMock))
	router := setupAuthRouter(handler)

	_, err := ledger.Begin("a@example.com", "alice", "secret")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/verify-otp", bytes.NewBufferString(`{"email":"a@example.com","otp":"000000"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLoginSuccess(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler, _, tokens := newAuthHandler(users, new(mocks.MailerMock))
	router := setupAuthRouter(handler)

	hashed, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	users.On("GetByEmail", mock.Anything, "a@example.com").
		Return(models.User{ID: 5, Email: "a@example.com", PasswordHash: string(hashed)}, nil).Once()
	users.On("SetRefreshToken", mock.Anything, 5, mock.AnythingOfType("string")).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{"email":"a@example.com","password":"secret"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	userID, err := tokens.VerifyAccess(resp["accessToken"])
	require.NoError(t, err)
	require.Equal(t, 5, userID)
}

func TestLoginWrongPassword(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler, _, _ := newAuthHandler(users, new(mocks.MailerMock))
	router := setupAuthRouter(handler)

	hashed, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	users.On("GetByEmail", mock.Anything, "a@example.com").
		Return(models.User{ID: 5, PasswordHash: string(hashed)}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{"email":"a@example.com","password":"wrong"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshRotatesSession(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler, _, tokens := newAuthHandler(users, new(mocks.MailerMock))
	router := setupAuthRouter(handler)

	pair, err := tokens.Issue(5, "a@example.com")
	require.NoError(t, err)
	users.On("GetByID", mock.Anything, 5).
		Return(models.User{ID: 5, Email: "a@example.com", RefreshToken: pair.RefreshToken}, nil).Once()
	users.On("SetRefreshToken", mock.Anything, 5, mock.AnythingOfType("string")).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "jid", Value: pair.RefreshToken})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	users.AssertExpectations(t)
}

func TestRefreshRevokedToken(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler, _, tokens := newAuthHandler(users, new(mocks.MailerMock))
	router := setupAuthRouter(handler)

	pair, err := tokens.Issue(5, "a@example.com")
	require.NoError(t, err)
	// The stored token differs: an older rotation was superseded.
	users.On("GetByID", mock.Anything, 5).
		Return(models.User{ID: 5, RefreshToken: "different"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "jid", Value: pair.RefreshToken})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRefreshWithoutCookie(t *testing.T) {
	handler, _, _ := newAuthHandler(new(mocks.UserRepositoryMock), new(mocks.MailerMock))
	router := setupAuthRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSearchRequiresQuery(t *testing.T) {
	handler, _, _ := newAuthHandler(new(mocks.UserRepositoryMock), new(mocks.MailerMock))
	router := setupAuthRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteRequiresCorrectPassword(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	handler, _, _ := newAuthHandler(users, new(mocks.MailerMock))
	router := setupAuthRouter(handler)

	hashed, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	users.On("GetByID", mock.Anything, 1).
		Return(models.User{ID: 1, PasswordHash: string(hashed)}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/account", bytes.NewBufferString(`{"password":"wrong"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	users.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}
