package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNoRows marks a single-record fetch that matched nothing. Callers rely on
// it to distinguish "record does not exist yet" from a transport failure.
var ErrNoRows = errors.New("no rows")

// PostgREST signals an empty .single() result with this error code.
const noRowsCode = "PGRST116"

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Msg     string `json:"msg"`
	Details string `json:"details"`
}

func (e apiError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Msg != "" {
		return e.Msg
	}
	return "backend request failed"
}

// Client talks to a Supabase-compatible backend: PostgREST row CRUD under
// /rest/v1, GoTrue password auth under /auth/v1. It carries the anon key on
// every request and the session bearer token once signed in.
type Client struct {
	rest    *resty.Client
	baseURL string
	anonKey string
	logger  *slog.Logger

	mu       sync.RWMutex
	session  *Session
	onChange []func(*Session)
}

func New(baseURL, anonKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	rest := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(15*time.Second).
		SetHeader("apikey", anonKey)
	return &Client{
		rest:    rest,
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		logger:  logger,
	}
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session != nil && c.session.AccessToken != "" {
		return c.session.AccessToken
	}
	return c.anonKey
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.rest.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.bearer()).
		SetHeader("Content-Type", "application/json")
}

func decodeAPIError(resp *resty.Response) error {
	var apiErr apiError
	if err := json.Unmarshal(resp.Body(), &apiErr); err == nil {
		if apiErr.Code == noRowsCode {
			return ErrNoRows
		}
		if apiErr.Message != "" || apiErr.Msg != "" {
			return apiErr
		}
	}
	return fmt.Errorf("backend status %d", resp.StatusCode())
}

// ListChats returns the user's conversations newest-first.
func (c *Client) ListChats(ctx context.Context, userID string, limit int) ([]ChatRow, error) {
	if limit < 1 {
		limit = 200
	}
	resp, err := c.request(ctx).
		SetQueryParam("select", "*").
		SetQueryParam("user_id", "eq."+userID).
		SetQueryParam("order", "created_at.desc").
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		Get("/rest/v1/chats")
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("list chats: %w", decodeAPIError(resp))
	}
	var rows []ChatRow
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, fmt.Errorf("decode chats: %w", err)
	}
	return rows, nil
}

// InsertChat creates a conversation and returns the stored row, including the
// backend-assigned identifier.
func (c *Client) InsertChat(ctx context.Context, row ChatRow) (ChatRow, error) {
	resp, err := c.request(ctx).
		SetHeader("Prefer", "return=representation").
		SetBody(row).
		Post("/rest/v1/chats")
	if err != nil {
		return ChatRow{}, fmt.Errorf("insert chat: %w", err)
	}
	if resp.StatusCode() != http.StatusCreated && resp.StatusCode() != http.StatusOK {
		return ChatRow{}, fmt.Errorf("insert chat: %w", decodeAPIError(resp))
	}
	var rows []ChatRow
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return ChatRow{}, fmt.Errorf("decode inserted chat: %w", err)
	}
	if len(rows) == 0 {
		return ChatRow{}, errors.New("insert chat: empty representation")
	}
	return rows[0], nil
}

// GetChatMessages reads the persisted message list for one conversation.
func (c *Client) GetChatMessages(ctx context.Context, chatID string) ([]MessageRow, error) {
	resp, err := c.request(ctx).
		SetHeader("Accept", "application/vnd.pgrst.object+json").
		SetQueryParam("select", "messages").
		SetQueryParam("id", "eq."+chatID).
		Get("/rest/v1/chats")
	if err != nil {
		return nil, fmt.Errorf("get chat messages: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get chat messages: %w", decodeAPIError(resp))
	}
	var row struct {
		Messages []MessageRow `json:"messages"`
	}
	if err := json.Unmarshal(resp.Body(), &row); err != nil {
		return nil, fmt.Errorf("decode chat messages: %w", err)
	}
	return row.Messages, nil
}

// UpdateChatMessages rewrites the full message list. This is the backend's
// only mutation primitive for messages and is not atomic against concurrent
// writers of the same row.
func (c *Client) UpdateChatMessages(ctx context.Context, chatID string, messages []MessageRow) error {
	if messages == nil {
		messages = []MessageRow{}
	}
	resp, err := c.request(ctx).
		SetQueryParam("id", "eq."+chatID).
		SetBody(map[string]any{"messages": messages}).
		Patch("/rest/v1/chats")
	if err != nil {
		return fmt.Errorf("update chat messages: %w", err)
	}
	if resp.StatusCode() != http.StatusNoContent && resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("update chat messages: %w", decodeAPIError(resp))
	}
	return nil
}

func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	resp, err := c.request(ctx).
		SetQueryParam("id", "eq."+chatID).
		Delete("/rest/v1/chats")
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if resp.StatusCode() != http.StatusNoContent && resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("delete chat: %w", decodeAPIError(resp))
	}
	return nil
}

// GetProfile fetches the single profile row for a user. Returns ErrNoRows
// when the profile has never been saved.
func (c *Client) GetProfile(ctx context.Context, userID string) (ProfileRow, error) {
	resp, err := c.request(ctx).
		SetHeader("Accept", "application/vnd.pgrst.object+json").
		SetQueryParam("select", "id,first_name,last_name,bio,hobbies,preferences,schedule").
		SetQueryParam("id", "eq."+userID).
		Get("/rest/v1/profiles")
	if err != nil {
		return ProfileRow{}, fmt.Errorf("get profile: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		err := decodeAPIError(resp)
		if errors.Is(err, ErrNoRows) {
			return ProfileRow{}, ErrNoRows
		}
		return ProfileRow{}, fmt.Errorf("get profile: %w", err)
	}
	var row ProfileRow
	if err := json.Unmarshal(resp.Body(), &row); err != nil {
		return ProfileRow{}, fmt.Errorf("decode profile: %w", err)
	}
	return row, nil
}

// UpsertProfile writes the full profile record keyed by user id.
func (c *Client) UpsertProfile(ctx context.Context, row ProfileRow) error {
	resp, err := c.request(ctx).
		SetHeader("Prefer", "resolution=merge-duplicates").
		SetQueryParam("on_conflict", "id").
		SetBody(row).
		Post("/rest/v1/profiles")
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	if resp.StatusCode() != http.StatusCreated && resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("upsert profile: %w", decodeAPIError(resp))
	}
	return nil
}

// GetUniversityName resolves the display name of the university linked to a
// profile, for the chat greeting. Missing rows degrade to an empty name.
func (c *Client) GetUniversityName(ctx context.Context, userID string) (string, error) {
	resp, err := c.request(ctx).
		SetHeader("Accept", "application/vnd.pgrst.object+json").
		SetQueryParam("select", "universities(name)").
		SetQueryParam("id", "eq."+userID).
		Get("/rest/v1/profiles")
	if err != nil {
		return "", fmt.Errorf("get university name: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		err := decodeAPIError(resp)
		if errors.Is(err, ErrNoRows) {
			return "", ErrNoRows
		}
		return "", fmt.Errorf("get university name: %w", err)
	}
	var row struct {
		Universities struct {
			Name string `json:"name"`
		} `json:"universities"`
	}
	if err := json.Unmarshal(resp.Body(), &row); err != nil {
		return "", fmt.Errorf("decode university name: %w", err)
	}
	return row.Universities.Name, nil
}

func (c *Client) ListUniversities(ctx context.Context) ([]UniversityRow, error) {
	resp, err := c.request(ctx).
		SetQueryParam("select", "id,name").
		SetQueryParam("order", "name.asc").
		Get("/rest/v1/universities")
	if err != nil {
		return nil, fmt.Errorf("list universities: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("list universities: %w", decodeAPIError(resp))
	}
	var rows []UniversityRow
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, fmt.Errorf("decode universities: %w", err)
	}
	return rows, nil
}
