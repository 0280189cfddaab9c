package transcribe

import (
	"context"
	"sync"
)

// MockTranscriber is a mock Transcriber for testing.
type MockTranscriber struct {
	mu sync.Mutex

	// Configurable behavior
	TranscribeFunc func(ctx context.Context, pcm []byte) (string, error)
	Result         string
	Err            error

	// Captured calls for assertions
	Calls [][]byte
}

// NewMockTranscriber creates a mock returning the given text.
func NewMockTranscriber(result string) *MockTranscriber {
	return &MockTranscriber{Result: result}
}

// Transcribe implements Transcriber.
func (m *MockTranscriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	m.mu.Lock()
	audio := make([]byte, len(pcm))
	copy(audio, pcm)
	m.Calls = append(m.Calls, audio)
	fn := m.TranscribeFunc
	result, err := m.Result, m.Err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, pcm)
	}
	return result, err
}

// CallCount returns the number of Transcribe calls.
func (m *MockTranscriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// SetResult updates the canned result.
func (m *MockTranscriber) SetResult(text string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Result = text
	m.Err = err
}
