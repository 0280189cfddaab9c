package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newRelayClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	config := DefaultConfig()
	config.APIKey = "tenant-key"
	config.BaseURL = srv.URL
	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestConversationLifecycle(t *testing.T) {
	type request struct {
		method string
		path   string
		body   map[string]any
	}
	var requests []request

	client := newRelayClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tenant-key" {
			t.Errorf("auth = %q, want tenant bearer", r.Header.Get("Authorization"))
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		requests = append(requests, request{r.Method, r.URL.Path, body})

		switch r.URL.Path {
		case "/conversations/userConversation/init":
			w.Write([]byte(`{"success":true,"data":{"_id":"conv-42"}}`))
		default:
			w.Write([]byte(`{"success":true}`))
		}
	})

	id, err := client.OpenConversation(context.Background())
	if err != nil {
		t.Fatalf("OpenConversation() error = %v", err)
	}
	if id != "conv-42" {
		t.Errorf("conversation ID = %q, want conv-42", id)
	}

	if err := client.AppendMessage(context.Background(), "  hello  ", true); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := client.AppendMessage(context.Background(), "hi, how can I help?", false); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	if err := client.CloseConversation(context.Background()); err != nil {
		t.Fatalf("CloseConversation() error = %v", err)
	}
	// Closing again is a no-op.
	if err := client.CloseConversation(context.Background()); err != nil {
		t.Fatalf("second CloseConversation() error = %v", err)
	}

	if len(requests) != 4 {
		t.Fatalf("requests = %d, want 4", len(requests))
	}

	msg := requests[1]
	if msg.path != "/messages/userMessages/init" {
		t.Errorf("message path = %q", msg.path)
	}
	if msg.body["content"] != "hello" {
		t.Errorf("content = %v, want trimmed hello", msg.body["content"])
	}
	if msg.body["isFromUser"] != true {
		t.Errorf("isFromUser = %v, want true", msg.body["isFromUser"])
	}
	if msg.body["conversationId"] != "conv-42" {
		t.Errorf("conversationId = %v", msg.body["conversationId"])
	}

	if requests[2].body["isFromUser"] != false {
		t.Errorf("avatar message isFromUser = %v, want false", requests[2].body["isFromUser"])
	}

	patch := requests[3]
	if patch.method != http.MethodPatch || patch.path != "/conversations/userConversation/conv-42/status" {
		t.Errorf("close = %s %s", patch.method, patch.path)
	}
	if patch.body["status"] != "completed" {
		t.Errorf("status = %v, want completed", patch.body["status"])
	}
}

func TestAppendWithoutConversation(t *testing.T) {
	client := newRelayClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without an open conversation")
	})

	if err := client.AppendMessage(context.Background(), "orphan", true); err != nil {
		t.Errorf("AppendMessage() without conversation = %v, want silent drop", err)
	}
}

func TestOpenConversationFailure(t *testing.T) {
	client := newRelayClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"tenant suspended"}`))
	})

	_, err := client.OpenConversation(context.Background())
	if err == nil {
		t.Fatal("OpenConversation() should surface the server message")
	}
	if client.ConversationID() != "" {
		t.Error("no conversation should be retained on failure")
	}
}

func TestMockRecorderCaptures(t *testing.T) {
	m := NewMockRecorder()
	if m.ConversationID() == "" {
		t.Error("mock should generate a conversation ID")
	}

	m.AppendMessage(context.Background(), "hi", true)
	m.AppendMessage(context.Background(), "hello", false)

	msgs := m.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if !msgs[0].FromUser || msgs[1].FromUser {
		t.Error("FromUser flags not captured in order")
	}
}
