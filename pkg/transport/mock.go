package transport

import (
	"context"
	"sync"

	"github.com/sellembedded/go-avatar/pkg/audioio"
)

// PublishedData captures one PublishData call for assertions.
type PublishedData struct {
	Data     []byte
	Topic    string
	Reliable bool
}

// MockRoom is a mock Room implementation for testing.
type MockRoom struct {
	mu sync.Mutex

	prepared  bool
	connected bool

	onData       DataHandler
	onAudio      AudioHandler
	onDisconnect DisconnectHandler

	// Configurable behavior
	PrepareFunc func(ctx context.Context, url, token string) error
	ConnectFunc func(ctx context.Context, url, token string) error
	PublishFunc func(data []byte, topic string, reliable bool) error

	// Captured calls for assertions
	Published      []PublishedData
	PrepareCalls   int
	ConnectCalls   int
	DisconnectCalls int
	LastURL        string
	LastToken      string
}

// NewMockRoom creates a new mock room.
func NewMockRoom() *MockRoom {
	return &MockRoom{}
}

// PrepareConnection implements Room.
func (m *MockRoom) PrepareConnection(ctx context.Context, url, token string) error {
	if m.PrepareFunc != nil {
		return m.PrepareFunc(ctx, url, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepared = true
	m.PrepareCalls++
	m.LastURL = url
	m.LastToken = token
	return nil
}

// Connect implements Room.
func (m *MockRoom) Connect(ctx context.Context, url, token string) error {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx, url, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.prepared {
		return ErrNotPrepared
	}
	m.connected = true
	m.ConnectCalls++
	return nil
}

// PublishData implements Room.
func (m *MockRoom) PublishData(data []byte, topic string, reliable bool) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(data, topic, reliable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.Published = append(m.Published, PublishedData{Data: data, Topic: topic, Reliable: reliable})
	return nil
}

// Disconnect implements Room.
func (m *MockRoom) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.prepared = false
	m.DisconnectCalls++
	return nil
}

// OnData implements Room.
func (m *MockRoom) OnData(fn DataHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onData = fn
}

// OnRemoteAudio implements Room.
func (m *MockRoom) OnRemoteAudio(fn AudioHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAudio = fn
}

// OnDisconnect implements Room.
func (m *MockRoom) OnDisconnect(fn DisconnectHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnect = fn
}

// IsConnected reports the mock connection state.
func (m *MockRoom) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SimulateData delivers an inbound payload to the registered handler.
func (m *MockRoom) SimulateData(payload []byte, topic string) {
	m.mu.Lock()
	fn := m.onData
	m.mu.Unlock()
	if fn != nil {
		fn(payload, topic)
	}
}

// SimulateRemoteAudio delivers a PCM frame to the registered handler.
func (m *MockRoom) SimulateRemoteAudio(chunk audioio.AudioChunk) {
	m.mu.Lock()
	fn := m.onAudio
	m.mu.Unlock()
	if fn != nil {
		fn(chunk)
	}
}

// SimulateDisconnect fires the disconnect handler.
func (m *MockRoom) SimulateDisconnect(reason error) {
	m.mu.Lock()
	m.connected = false
	fn := m.onDisconnect
	m.mu.Unlock()
	if fn != nil {
		fn(reason)
	}
}
