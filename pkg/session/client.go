// Package session manages the lifecycle of a live avatar session: token
// acquisition, media-room provisioning, transport join, control messaging,
// keep-alive, and teardown.
package session

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

	"github.com/gorilla/websocket"

	"github.com/sellembedded/go-avatar/internal/httpc"
	"github.com/sellembedded/go-avatar/pkg/events"
	"github.com/sellembedded/go-avatar/pkg/transport"
)

// Control event types published on the agent-control topic.
const (
	ControlStartListening = "avatar.start_listening"
	ControlSpeakText      = "avatar.speak_text"
	ControlSpeakResponse  = "avatar.speak_response"

	// ControlTopic is the data-channel topic for outbound control messages.
	ControlTopic = "agent-control"
)

// SessionInfo describes a provisioned media room.
type SessionInfo struct {
	SessionID  string `json:"session_id"`
	MediaURL   string `json:"livekit_url"`
	MediaToken string `json:"livekit_client_token"`
	WSURL      string `json:"ws_url"`
	Intro      string `json:"intro"`
}

// EventHandler receives raw inbound event payloads with their topic.
type EventHandler func(payload []byte, topic string)

// Client orchestrates a single avatar session against the proxy server.
// One Client manages at most one session at a time; CloseSession resets
// it for reuse.
type Client struct {
	config *Config
	logger *slog.Logger
	http   *http.Client
	room   transport.Room

	mu        sync.RWMutex
	state     ConnectionState
	token     string
	info      *SessionInfo
	eventWS   *websocket.Conn
	stopKeep  context.CancelFunc
	onEvent   EventHandler
	onClose   func(reason error)
	introSent bool
}

// NewClient creates a session client over the given media room.
func NewClient(room transport.Room, opts ...Option) (*Client, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config: config,
		logger: config.Logger.With("component", "session"),
		http:   httpc.NewClient(config.RequestTimeout),
		room:   room,
		state:  StateIdle,
	}

	room.OnData(func(payload []byte, topic string) {
		c.emitEvent(payload, topic)
	})
	room.OnDisconnect(func(reason error) {
		c.mu.RLock()
		fn := c.onClose
		c.mu.RUnlock()
		if fn != nil {
			fn(reason)
		}
	})

	return c, nil
}

// OnEvent registers a handler for inbound event payloads. Payloads arrive
// from both the media data channels and the session event socket.
func (c *Client) OnEvent(fn EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = fn
}

// OnClose registers a handler invoked when the transport drops.
func (c *Client) OnClose(fn func(reason error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

// OnRemoteAudio registers a handler for decoded remote audio frames.
func (c *Client) OnRemoteAudio(fn transport.AudioHandler) {
	c.room.OnRemoteAudio(fn)
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SessionID returns the active session ID, or "" if none.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.info == nil {
		return ""
	}
	return c.info.SessionID
}

// Intro returns the server-provided greeting for the active session, if any.
func (c *Client) Intro() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.info == nil {
		return ""
	}
	return c.info.Intro
}

type tokenRequest struct {
	AvatarID  string  `json:"avatar_id"`
	ContextID *string `json:"context_id"`
	VoiceID   *string `json:"voice_id"`
	Language  string  `json:"language"`
}

type tokenResponse struct {
	SessionToken string `json:"session_token"`
	SessionID    string `json:"session_id"`
}

type apiError struct {
	ErrorMsg string `json:"error"`
	Message  string `json:"message"`
}

func (e apiError) text() string {
	if e.ErrorMsg != "" {
		return e.ErrorMsg
	}
	return e.Message
}

// AcquireToken exchanges the avatar identity for a short-lived session
// token. Failure leaves the client in Idle with nothing retained.
func (c *Client) AcquireToken(ctx context.Context) error {
	req := tokenRequest{
		AvatarID: c.config.AvatarID,
		Language: c.config.Language,
	}
	if c.config.ContextID != "" {
		req.ContextID = &c.config.ContextID
	}
	if c.config.VoiceID != "" {
		req.VoiceID = &c.config.VoiceID
	}

	var resp tokenResponse
	status, body, err := c.postJSON(ctx, "/api/sessions/token", req, "")
	if err != nil {
		return fmt.Errorf("session: token request: %w", err)
	}
	if status < 200 || status >= 300 {
		return &AuthError{StatusCode: status, Message: decodeAPIError(body)}
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("session: token response: %w", err)
	}
	if resp.SessionToken == "" {
		return &AuthError{StatusCode: status, Message: "empty session token"}
	}

	c.mu.Lock()
	c.token = resp.SessionToken
	c.state = StateTokenAcquired
	c.mu.Unlock()

	c.logger.Debug("session token acquired")
	return nil
}

// StartSession provisions the media room and prepares the transport for a
// fast join. Acquires a token first if none is held. On failure the client
// aborts back to Idle with no partial session retained.
func (c *Client) StartSession(ctx context.Context) (*SessionInfo, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if token == "" {
		if err := c.AcquireToken(ctx); err != nil {
			return nil, err
		}
		c.mu.RLock()
		token = c.token
		c.mu.RUnlock()
	}

	c.setState(StateStarting)

	status, body, err := c.postJSON(ctx, "/api/sessions/start", struct{}{}, token)
	if err != nil {
		c.abortToIdle()
		return nil, fmt.Errorf("session: start request: %w", err)
	}
	if status < 200 || status >= 300 {
		c.abortToIdle()
		return nil, &SessionStartError{StatusCode: status, Message: decodeAPIError(body)}
	}

	var info SessionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		c.abortToIdle()
		return nil, fmt.Errorf("session: start response: %w", err)
	}
	if info.SessionID == "" || info.MediaURL == "" {
		c.abortToIdle()
		return nil, &SessionStartError{StatusCode: status, Message: "incomplete session info"}
	}

	if err := c.room.PrepareConnection(ctx, info.MediaURL, info.MediaToken); err != nil {
		c.abortToIdle()
		return nil, fmt.Errorf("session: prepare connection: %w", err)
	}

	c.mu.Lock()
	c.info = &info
	c.introSent = false
	c.mu.Unlock()

	c.logger.Info("session started", "session_id", info.SessionID)
	return &info, nil
}

// Connect joins the media room and begins the conversation: after the
// handshake settles, the avatar is told to start listening and the
// keep-alive loop begins.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.RLock()
	info := c.info
	state := c.state
	c.mu.RUnlock()

	if info == nil {
		return ErrNotStarted
	}
	if state == StateConnected {
		return ErrAlreadyConnected
	}

	if err := c.room.Connect(ctx, info.MediaURL, info.MediaToken); err != nil {
		return fmt.Errorf("session: room connect: %w", err)
	}

	c.setState(StateConnected)

	if info.WSURL != "" {
		c.dialEventSocket(ctx, info.WSURL)
	}

	// Give the room a moment to settle before the first control message.
	select {
	case <-time.After(c.config.SettleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := c.PublishControl(ControlStartListening, ""); err != nil {
		c.logger.Warn("start_listening publish failed", "error", err)
	}

	keepCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.stopKeep = cancel
	c.mu.Unlock()
	go c.keepAliveLoop(keepCtx)

	c.logger.Info("session connected", "session_id", info.SessionID)
	return nil
}

// PublishControl sends a control message on the agent-control topic.
// Without an active session this is a silent no-op: control messages
// racing teardown are routine, not errors.
func (c *Client) PublishControl(eventType, text string) error {
	c.mu.RLock()
	info := c.info
	c.mu.RUnlock()

	if info == nil || info.SessionID == "" {
		return nil
	}

	msg := map[string]string{
		"event_type": eventType,
		"session_id": info.SessionID,
	}
	if text != "" {
		msg["text"] = text
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("session: marshal control: %w", err)
	}

	if err := c.room.PublishData(payload, ControlTopic, true); err != nil {
		return fmt.Errorf("session: publish control: %w", err)
	}

	c.logger.Debug("control published", "event_type", eventType)
	return nil
}

// KeepAlive sends one best-effort keep-alive ping. Failures are logged
// and swallowed.
func (c *Client) KeepAlive(ctx context.Context) {
	c.mu.RLock()
	token := c.token
	info := c.info
	c.mu.RUnlock()

	if token == "" || info == nil {
		return
	}

	body := map[string]string{"session_id": info.SessionID}
	if _, _, err := c.postJSON(ctx, "/api/sessions/keep-alive", body, token); err != nil {
		c.logger.Debug("keep-alive failed", "error", err)
	}
}

// CloseSession tears down the session: best-effort stop notification,
// event socket close, room disconnect, then full state reset. Safe to
// call repeatedly and from any state.
func (c *Client) CloseSession(ctx context.Context) error {
	c.mu.Lock()
	if c.info == nil && c.token == "" && c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	token := c.token
	info := c.info
	ws := c.eventWS
	cancel := c.stopKeep
	c.eventWS = nil
	c.stopKeep = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if token != "" && info != nil {
		body := map[string]string{"session_id": info.SessionID}
		if _, _, err := c.postJSON(ctx, "/api/sessions/stop", body, token); err != nil {
			c.logger.Debug("stop notification failed", "error", err)
		}
	}

	if ws != nil {
		_ = ws.Close()
	}

	if err := c.room.Disconnect(); err != nil {
		c.logger.Debug("room disconnect", "error", err)
	}

	c.mu.Lock()
	c.token = ""
	c.info = nil
	c.introSent = false
	c.state = StateIdle
	c.mu.Unlock()

	c.logger.Info("session closed")
	return nil
}

// MarkIntroSent records that the session greeting was played. Returns
// false if it was already marked, so the greeting runs once per session.
func (c *Client) MarkIntroSent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.introSent || c.info == nil {
		return false
	}
	c.introSent = true
	return true
}

func (c *Client) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.KeepAlive(ctx)
		}
	}
}

// dialEventSocket connects the session event stream. Events from this
// socket join the same inbound path as data-channel payloads.
func (c *Client) dialEventSocket(ctx context.Context, wsURL string) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		c.logger.Warn("event socket dial failed", "error", err)
		return
	}

	c.mu.Lock()
	c.eventWS = conn
	c.mu.Unlock()

	go func() {
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			c.emitEvent(payload, events.ResponseTopic)
		}
	}()
}

func (c *Client) emitEvent(payload []byte, topic string) {
	c.mu.RLock()
	fn := c.onEvent
	c.mu.RUnlock()
	if fn != nil {
		fn(payload, topic)
	}
}

func (c *Client) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) abortToIdle() {
	c.mu.Lock()
	c.info = nil
	c.state = StateIdle
	c.mu.Unlock()
}

// postJSON issues a JSON POST to the proxy and returns status and body.
func (c *Client) postJSON(ctx context.Context, path string, payload any, bearer string) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	url := strings.TrimRight(c.config.ServerURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(data)))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func decodeAPIError(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	return e.text()
}
