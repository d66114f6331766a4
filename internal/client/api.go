package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"logitalk/internal/models"
)

// API is the HTTP collaborator client: conversation history, summaries
// and the persisted mark-read mirror.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPI constructs an API client for the given base URL and bearer
// token.
func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Login authenticates and returns a bearer token for subsequent calls.
func Login(ctx context.Context, baseURL, userEmail, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": userEmail, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/users/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed: status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

// FetchHistory returns the ordered message history with a counterpart.
func (a *API) FetchHistory(ctx context.Context, counterpartID int) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	err := a.do(ctx, http.MethodGet, fmt.Sprintf("/api/chats/%d", counterpartID), nil, &out)
	return out.Messages, err
}

// FetchSummaries returns the conversation list.
func (a *API) FetchSummaries(ctx context.Context) ([]models.Summary, error) {
	var out struct {
		Chats []models.Summary `json:"chats"`
	}
	err := a.do(ctx, http.MethodGet, "/api/chats", nil, &out)
	return out.Chats, err
}

// StartConversation returns a summary row for a counterpart with no
// history yet.
func (a *API) StartConversation(ctx context.Context, counterpartID int) (models.Summary, error) {
	var out struct {
		Chat models.Summary `json:"chat"`
	}
	err := a.do(ctx, http.MethodPost, "/api/chats/start", map[string]int{"user_id": counterpartID}, &out)
	return out.Chat, err
}

// MarkRead persists the read flip for all messages from counterpart,
// independent of socket state.
func (a *API) MarkRead(ctx context.Context, counterpartID int) error {
	return a.do(ctx, http.MethodPost, fmt.Sprintf("/api/chats/%d/read", counterpartID), nil, nil)
}

// Profile returns the authenticated user's own record.
func (a *API) Profile(ctx context.Context) (models.User, error) {
	var out struct {
		User models.User `json:"user"`
	}
	err := a.do(ctx, http.MethodGet, "/api/users/profile", nil, &out)
	return out.User, err
}

// SearchUsers finds users by name.
func (a *API) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	var out struct {
		Users []models.User `json:"users"`
	}
	err := a.do(ctx, http.MethodGet, "/api/users/search?query="+query, nil, &out)
	return out.Users, err
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
