package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sellembedded/go-avatar/internal/httpc"
)

// Config holds relay client configuration.
type Config struct {
	// BaseURL is the backoffice API root.
	BaseURL string

	// APIKey is the per-tenant bearer key.
	APIKey string

	// Timeout bounds each HTTP call.
	Timeout time.Duration

	// Logger for relay events. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Timeout: 15 * time.Second,
		Logger:  slog.Default(),
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Client stores transcripts against the backoffice API. One Client tracks
// at most one open conversation.
type Client struct {
	config *Config
	logger *slog.Logger
	http   *http.Client

	mu             sync.RWMutex
	conversationID string
	visitorID      string
}

// NewClient creates a relay client.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config: config,
		logger: config.Logger.With("component", "relay"),
		http:   httpc.NewClient(config.Timeout),
	}, nil
}

// ConversationID returns the open conversation ID, or "" if none.
func (c *Client) ConversationID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conversationID
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type conversationData struct {
	MongoID string `json:"_id"`
	ID      string `json:"id"`
}

func (d conversationData) id() string {
	if d.MongoID != "" {
		return d.MongoID
	}
	return d.ID
}

// RegisterVisitor announces a visitor to the backoffice and retains the
// returned visitor ID for conversation attribution.
func (c *Client) RegisterVisitor(ctx context.Context, ip, location string) error {
	body := map[string]any{"ip": ip, "conversationId": nil}
	if location != "" {
		body["location"] = location
	} else {
		body["location"] = nil
	}

	var env envelope
	if err := c.call(ctx, http.MethodPost, "/visitors/init", body, &env); err != nil {
		return err
	}

	var data conversationData
	if env.Data != nil {
		_ = json.Unmarshal(env.Data, &data)
	}

	c.mu.Lock()
	c.visitorID = data.id()
	c.mu.Unlock()
	return nil
}

// OpenConversation creates a conversation record and returns its ID.
func (c *Client) OpenConversation(ctx context.Context) (string, error) {
	c.mu.RLock()
	visitorID := c.visitorID
	c.mu.RUnlock()

	body := map[string]any{"visitorId": nil}
	if visitorID != "" {
		body["visitorId"] = visitorID
	}

	var env envelope
	if err := c.call(ctx, http.MethodPost, "/conversations/userConversation/init", body, &env); err != nil {
		return "", err
	}
	if !env.Success || env.Data == nil {
		if env.Message != "" {
			return "", fmt.Errorf("relay: open conversation: %s", env.Message)
		}
		return "", ErrNoConversationID
	}

	var data conversationData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("relay: conversation data: %w", err)
	}
	id := data.id()
	if id == "" {
		return "", ErrNoConversationID
	}

	c.mu.Lock()
	c.conversationID = id
	c.mu.Unlock()

	c.logger.Info("conversation opened", "conversation_id", id)
	return id, nil
}

// AppendMessage implements Recorder. Without an open conversation the
// message is dropped with a warning rather than failing the caller.
func (c *Client) AppendMessage(ctx context.Context, content string, fromUser bool) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	c.mu.RLock()
	conversationID := c.conversationID
	c.mu.RUnlock()
	if conversationID == "" {
		c.logger.Warn("message dropped, no open conversation")
		return nil
	}

	body := map[string]any{
		"conversationId": conversationID,
		"isFromUser":     fromUser,
		"content":        content,
	}
	if err := c.call(ctx, http.MethodPost, "/messages/userMessages/init", body, nil); err != nil {
		return fmt.Errorf("relay: append message: %w", err)
	}
	return nil
}

// CloseConversation marks the open conversation completed. A no-op when
// none is open; safe to call repeatedly.
func (c *Client) CloseConversation(ctx context.Context) error {
	c.mu.Lock()
	conversationID := c.conversationID
	c.conversationID = ""
	c.mu.Unlock()
	if conversationID == "" {
		return nil
	}

	path := "/conversations/userConversation/" + conversationID + "/status"
	body := map[string]string{"status": "completed"}
	if err := c.call(ctx, http.MethodPatch, path, body, nil); err != nil {
		return fmt.Errorf("relay: close conversation: %w", err)
	}

	c.logger.Info("conversation completed", "conversation_id", conversationID)
	return nil
}

// MarkVisitorEngaged flags the visitor as having talked to the avatar.
func (c *Client) MarkVisitorEngaged(ctx context.Context) error {
	c.mu.RLock()
	visitorID := c.visitorID
	c.mu.RUnlock()
	if visitorID == "" {
		return nil
	}

	path := "/visitors/" + visitorID + "/talkedToChat"
	body := map[string]bool{"talkedToChat": true}
	return c.call(ctx, http.MethodPatch, path, body, nil)
}

// call issues one JSON request and decodes the response envelope into out.
func (c *Client) call(ctx context.Context, method, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("relay: marshal: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("relay: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("relay: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("relay: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		if env.Message != "" {
			return fmt.Errorf("relay: %s %s: HTTP %d: %s", method, path, resp.StatusCode, env.Message)
		}
		return fmt.Errorf("relay: %s %s: HTTP %d", method, path, resp.StatusCode)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("relay: decode response: %w", err)
		}
	}
	return nil
}
