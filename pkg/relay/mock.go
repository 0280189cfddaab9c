package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// AppendedMessage captures one AppendMessage call for assertions.
type AppendedMessage struct {
	Content  string
	FromUser bool
}

// MockRecorder is a mock Recorder for testing.
type MockRecorder struct {
	mu sync.Mutex

	// Configurable behavior
	AppendFunc func(ctx context.Context, content string, fromUser bool) error
	Err        error

	// Captured calls for assertions
	Appended       []AppendedMessage
	conversationID string
}

// NewMockRecorder creates a mock with a generated conversation ID.
func NewMockRecorder() *MockRecorder {
	return &MockRecorder{conversationID: uuid.NewString()}
}

// AppendMessage implements Recorder.
func (m *MockRecorder) AppendMessage(ctx context.Context, content string, fromUser bool) error {
	m.mu.Lock()
	m.Appended = append(m.Appended, AppendedMessage{Content: content, FromUser: fromUser})
	fn := m.AppendFunc
	err := m.Err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, content, fromUser)
	}
	return err
}

// ConversationID returns the generated conversation ID.
func (m *MockRecorder) ConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationID
}

// Messages returns a copy of the captured appends.
func (m *MockRecorder) Messages() []AppendedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AppendedMessage, len(m.Appended))
	copy(out, m.Appended)
	return out
}
