package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/devpool/chatsync/internal/domain"
)

const defaultTimeout = 15 * time.Second

// TokenSource supplies the bearer token attached to each request.
type TokenSource interface {
	Token() (string, bool)
}

// Client talks to the conversation/message REST API.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a Client rooted at baseURL, e.g. http://host/api.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "api")
	return c
}

// ListConversations fetches every conversation visible to the current user.
func (c *Client) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	var out []domain.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConversation fetches a single conversation's metadata.
func (c *Client) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var out domain.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages fetches one page of a conversation's messages.
func (c *Client) ListMessages(ctx context.Context, conversationID string, page MessagePage) ([]domain.Message, error) {
	if err := Validate(page); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page.Page))
	q.Set("pageSize", strconv.Itoa(page.PageSize))

	var out []domain.Message
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StartDirect returns the direct conversation with userID, creating it if needed.
func (c *Client) StartDirect(ctx context.Context, userID string) (*domain.Conversation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	var out domain.Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations/direct/"+url.PathEscape(userID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateGroup creates a group conversation.
func (c *Client) CreateGroup(ctx context.Context, req CreateGroupRequest) (*domain.Conversation, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	var out domain.Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations/group", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage stores a message through the REST path and returns it.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*domain.Message, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	var out domain.Message
	if err := c.do(ctx, http.MethodPost, "/messages", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead marks a conversation read up to lastMessageID (or entirely when empty).
func (c *Client) MarkRead(ctx context.Context, conversationID, lastMessageID string) error {
	path := "/conversations/" + url.PathEscape(conversationID) + "/read"
	return c.do(ctx, http.MethodPost, path, nil, MarkReadRequest{LastMessageID: lastMessageID}, nil)
}

// SearchUsers finds users matching query.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]domain.UserSummary, error) {
	q := url.Values{}
	q.Set("query", query)
	var out []domain.UserSummary
	if err := c.do(ctx, http.MethodGet, "/users/search", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OnlineUsers returns the users currently connected to the hub.
func (c *Client) OnlineUsers(ctx context.Context) ([]domain.UserSummary, error) {
	var out []domain.UserSummary
	if err := c.do(ctx, http.MethodGet, "/users/online", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchEntities finds linkable business records.
func (c *Client) SearchEntities(ctx context.Context, search EntitySearch) ([]domain.EntitySummary, error) {
	if err := Validate(search); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("type", search.Type)
	q.Set("query", search.Query)
	var out []domain.EntitySummary
	if err := c.do(ctx, http.MethodGet, "/entities/search", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Message string `json:"message"`
	}
	if len(raw) > 0 && json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Message
	}
	return apiErr
}
