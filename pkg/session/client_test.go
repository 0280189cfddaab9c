package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sellembedded/go-avatar/pkg/transport"
)

// newTestServer serves the proxy session endpoints with canned responses.
func newTestServer(t *testing.T, tokenStatus int, tokenBody string) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		switch r.URL.Path {
		case "/api/sessions/token":
			w.WriteHeader(tokenStatus)
			w.Write([]byte(tokenBody))
		case "/api/sessions/start":
			if r.Header.Get("Authorization") != "Bearer tok-123" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"missing bearer"}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]string{
				"session_id":           "sess-1",
				"livekit_url":          "wss://media.example.com",
				"livekit_client_token": "media-tok",
				"intro":                "Hello there",
			})
		case "/api/sessions/keep-alive", "/api/sessions/stop":
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(t *testing.T, serverURL string, room transport.Room) *Client {
	t.Helper()
	c, err := NewClient(room,
		WithServerURL(serverURL),
		WithAvatarID("avatar-1"),
		WithSettleDelay(time.Millisecond),
		WithKeepAliveInterval(time.Hour),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestAcquireTokenRejected(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusUnauthorized, `{"error":"invalid key"}`)
	c := newTestClient(t, srv.URL, transport.NewMockRoom())

	err := c.AcquireToken(context.Background())
	if err == nil {
		t.Fatal("AcquireToken() should fail on 401")
	}
	if !IsAuthError(err) {
		t.Fatalf("error = %T, want *AuthError", err)
	}
	authErr := err.(*AuthError)
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", authErr.StatusCode)
	}
	if authErr.Message != "invalid key" {
		t.Errorf("Message = %q, want server error text", authErr.Message)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle after auth failure", c.State())
	}
}

func TestStartAndConnectFlow(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"session_token":"tok-123","session_id":"sess-1"}`)
	room := transport.NewMockRoom()
	c := newTestClient(t, srv.URL, room)

	info, err := c.StartSession(context.Background())
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if info.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", info.SessionID)
	}
	if info.Intro != "Hello there" {
		t.Errorf("Intro = %q, want greeting", info.Intro)
	}
	if room.PrepareCalls != 1 {
		t.Errorf("PrepareCalls = %d, want 1", room.PrepareCalls)
	}
	if room.LastToken != "media-tok" {
		t.Errorf("room token = %q, want media token", room.LastToken)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if c.State() != StateConnected {
		t.Errorf("state = %v, want connected", c.State())
	}

	// The avatar must be told to listen once the handshake settles.
	if len(room.Published) != 1 {
		t.Fatalf("published = %d messages, want 1", len(room.Published))
	}
	var msg map[string]string
	if err := json.Unmarshal(room.Published[0].Data, &msg); err != nil {
		t.Fatalf("control payload: %v", err)
	}
	if msg["event_type"] != ControlStartListening {
		t.Errorf("event_type = %q, want %q", msg["event_type"], ControlStartListening)
	}
	if msg["session_id"] != "sess-1" {
		t.Errorf("session_id = %q, want sess-1", msg["session_id"])
	}

	if err := c.Connect(context.Background()); err != ErrAlreadyConnected {
		t.Errorf("second Connect() = %v, want ErrAlreadyConnected", err)
	}
}

func TestConnectBeforeStart(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"session_token":"tok-123"}`)
	c := newTestClient(t, srv.URL, transport.NewMockRoom())

	if err := c.Connect(context.Background()); err != ErrNotStarted {
		t.Errorf("Connect() = %v, want ErrNotStarted", err)
	}
}

func TestStartSessionProvisioningFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sessions/token":
			w.Write([]byte(`{"session_token":"tok-123"}`))
		case "/api/sessions/start":
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"message":"no capacity"}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, transport.NewMockRoom())
	_, err := c.StartSession(context.Background())
	if !IsSessionStartError(err) {
		t.Fatalf("error = %v, want *SessionStartError", err)
	}
	startErr := err.(*SessionStartError)
	if startErr.Message != "no capacity" {
		t.Errorf("Message = %q, want server message text", startErr.Message)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle after provisioning failure", c.State())
	}
	if c.SessionID() != "" {
		t.Error("no partial session should be retained")
	}
}

func TestPublishControlWithoutSession(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"session_token":"tok-123"}`)
	room := transport.NewMockRoom()
	c := newTestClient(t, srv.URL, room)

	if err := c.PublishControl(ControlSpeakText, "hello"); err != nil {
		t.Errorf("PublishControl() without session = %v, want silent no-op", err)
	}
	if len(room.Published) != 0 {
		t.Errorf("published = %d, want 0", len(room.Published))
	}
}

func TestCloseSessionIdempotent(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"session_token":"tok-123","session_id":"sess-1"}`)
	room := transport.NewMockRoom()
	c := newTestClient(t, srv.URL, room)

	if _, err := c.StartSession(context.Background()); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := c.CloseSession(context.Background()); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle after close", c.State())
	}
	if room.DisconnectCalls != 1 {
		t.Errorf("DisconnectCalls = %d, want 1", room.DisconnectCalls)
	}

	stops := 0
	for _, path := range *calls {
		if path == "/api/sessions/stop" {
			stops++
		}
	}
	if stops != 1 {
		t.Errorf("stop notifications = %d, want 1", stops)
	}

	// A second close is a no-op, including the stop notification.
	if err := c.CloseSession(context.Background()); err != nil {
		t.Fatalf("second CloseSession() error = %v", err)
	}
	stops = 0
	for _, path := range *calls {
		if path == "/api/sessions/stop" {
			stops++
		}
	}
	if stops != 1 {
		t.Errorf("stop notifications after double close = %d, want 1", stops)
	}

	// Control messages racing teardown are silently dropped.
	if err := c.PublishControl(ControlSpeakText, "late"); err != nil {
		t.Errorf("PublishControl() after close = %v, want nil", err)
	}
}

func TestEventDelivery(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"session_token":"tok-123"}`)
	room := transport.NewMockRoom()
	c := newTestClient(t, srv.URL, room)

	var gotPayload []byte
	var gotTopic string
	c.OnEvent(func(payload []byte, topic string) {
		gotPayload = payload
		gotTopic = topic
	})

	room.SimulateData([]byte(`{"event_type":"avatar.speak_started"}`), "agent-response")
	if gotTopic != "agent-response" {
		t.Errorf("topic = %q, want agent-response", gotTopic)
	}
	if len(gotPayload) == 0 {
		t.Error("payload should be forwarded unchanged")
	}
}

func TestMarkIntroSentOncePerSession(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"session_token":"tok-123","session_id":"sess-1"}`)
	c := newTestClient(t, srv.URL, transport.NewMockRoom())

	if c.MarkIntroSent() {
		t.Error("no intro without a session")
	}

	if _, err := c.StartSession(context.Background()); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if !c.MarkIntroSent() {
		t.Error("first MarkIntroSent() should succeed")
	}
	if c.MarkIntroSent() {
		t.Error("second MarkIntroSent() should report already sent")
	}

	// A fresh session gets a fresh intro.
	if err := c.CloseSession(context.Background()); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	if _, err := c.StartSession(context.Background()); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if !c.MarkIntroSent() {
		t.Error("intro should reset for a new session")
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := NewClient(transport.NewMockRoom()); err != ErrMissingServerURL {
		t.Errorf("NewClient() without server URL = %v, want ErrMissingServerURL", err)
	}
	if _, err := NewClient(transport.NewMockRoom(), WithServerURL("http://x")); err != ErrMissingAvatarID {
		t.Errorf("NewClient() without avatar ID = %v, want ErrMissingAvatarID", err)
	}
}
