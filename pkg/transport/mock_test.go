package transport

import (
	"context"
	"testing"
)

func TestMockRoomLifecycle(t *testing.T) {
	m := NewMockRoom()

	if err := m.Connect(context.Background(), "wss://x", "tok"); err != ErrNotPrepared {
		t.Errorf("Connect() before prepare = %v, want ErrNotPrepared", err)
	}

	if err := m.PrepareConnection(context.Background(), "wss://x", "tok"); err != nil {
		t.Fatalf("PrepareConnection() error = %v", err)
	}
	if err := m.PrepareConnection(context.Background(), "wss://x", "tok"); err != nil {
		t.Errorf("PrepareConnection() should be idempotent, got %v", err)
	}

	if err := m.PublishData([]byte("x"), "agent-control", true); err != ErrNotConnected {
		t.Errorf("PublishData() before connect = %v, want ErrNotConnected", err)
	}

	if err := m.Connect(context.Background(), "wss://x", "tok"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := m.PublishData([]byte("hello"), "agent-control", true); err != nil {
		t.Fatalf("PublishData() error = %v", err)
	}
	if len(m.Published) != 1 || m.Published[0].Topic != "agent-control" {
		t.Errorf("published = %+v, want one agent-control publish", m.Published)
	}

	var gotTopic string
	m.OnData(func(payload []byte, topic string) { gotTopic = topic })
	m.SimulateData([]byte(`{}`), "agent-response")
	if gotTopic != "agent-response" {
		t.Errorf("data topic = %q, want agent-response", gotTopic)
	}

	if err := m.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if m.IsConnected() {
		t.Error("should not be connected after Disconnect")
	}
}
