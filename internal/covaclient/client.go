package covaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"github.com/markdave123-py/cova/internal/models"
)

const (
	DefaultServerURL = "http://localhost:8080"

	// GeneratePath is the streaming generation endpoint.
	GeneratePath = "/api/generate"
)

// ErrUnexpectedStatus is matched by every StatusError.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// StatusError reports a non-2xx answer from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code %d", e.Code)
	}
	return fmt.Sprintf("unexpected status code %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrUnexpectedStatus }

// Client talks to the Cova backend. It is the message store of the chat
// core and also opens the raw generation stream.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string

	validate *validator.Validate
}

// Option is a functional option for configuring the client
type Option func(*Client)

// WithServerURL sets the server URL for the client
func WithServerURL(url string) Option {
	return func(c *Client) {
		c.BaseURL = strings.TrimSuffix(url, "/")
	}
}

// WithToken sets the bearer token sent with every request
func WithToken(token string) Option {
	return func(c *Client) {
		c.Token = token
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = httpClient
	}
}

// New creates a new backend client
func New(opts ...Option) *Client {
	client := &Client{
		BaseURL: DefaultServerURL,
		// Generation responses stream until the model stops; Stream is bounded by ctx only.
		HTTPClient: &http.Client{},
		validate:   validator.New(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// ListMessages returns the validated history of a conversation. Every
// entry must carry a string content field, empty or not.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var raw json.RawMessage
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.Get(ctx, path, &raw); err != nil {
		return nil, err
	}

	var msgs []models.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("invalid history payload: %w", err)
	}
	entries := gjson.ParseBytes(raw).Array()
	for i := range msgs {
		if content := entries[i].Get("content"); content.Type != gjson.String {
			return nil, fmt.Errorf("message %d: invalid shape: content must be a string", i)
		}
		if err := c.validate.Struct(&msgs[i]); err != nil {
			return nil, fmt.Errorf("message %d: invalid shape: %w", i, err)
		}
		if msgs[i].Role == models.RoleSystem {
			msgs[i].Role = models.RoleAssistant
		}
	}
	return msgs, nil
}

// GetMessage fetches the sources attached to one message.
func (c *Client) GetMessage(ctx context.Context, conversationID, messageID string) (*models.MessageSources, error) {
	var out models.MessageSources
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages/" + url.PathEscape(messageID)
	if err := c.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(&out); err != nil {
		return nil, fmt.Errorf("invalid message payload: %w", err)
	}
	return &out, nil
}

// CreateConversation creates a conversation and returns its id.
func (c *Client) CreateConversation(ctx context.Context, title string) (string, error) {
	var out struct {
		ID string `json:"id" validate:"required"`
	}
	if err := c.Post(ctx, "/api/conversations", map[string]string{"title": title}, &out); err != nil {
		return "", err
	}
	if err := c.validate.Struct(&out); err != nil {
		return "", fmt.Errorf("invalid conversation payload: %w", err)
	}
	return out.ID, nil
}

// Tenant returns the tenant of the authenticated profile.
func (c *Client) Tenant(ctx context.Context) (*models.Tenant, error) {
	var t models.Tenant
	if err := c.Get(ctx, "/api/tenant", &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Token string `json:"token" validate:"required"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.Post(ctx, "/api/login", body, &out); err != nil {
		return "", err
	}
	if err := c.validate.Struct(&out); err != nil {
		return "", fmt.Errorf("invalid login payload: %w", err)
	}
	return out.Token, nil
}

// Stream posts body to path and returns the live response, body unread.
// The caller owns resp.Body.
func (c *Client) Stream(ctx context.Context, path string, body any) (*http.Response, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

// Get performs a GET request to the specified path and decodes the JSON response
func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	req, err := c.newJSONRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, result)
}

// Post performs a POST request to the specified path with the given body
func (c *Client) Post(ctx context.Context, path string, body, result interface{}) error {
	req, err := c.newJSONRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return c.do(req, result)
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, result interface{}) error {
	timeout := 30 * time.Second
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()

	resp, err := c.HTTPClient.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
