package turn

import "sync"

// MockMicrophone is a mock Microphone for testing.
type MockMicrophone struct {
	mu sync.Mutex

	// Configurable behavior
	StartFunc func() error

	// Captured calls for assertions
	StartCalls int
	StopCalls  int
	recording  bool
}

// StartRecording implements Microphone.
func (m *MockMicrophone) StartRecording() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StartCalls++
	if m.StartFunc != nil {
		return m.StartFunc()
	}
	m.recording = true
	return nil
}

// StopRecording implements Microphone.
func (m *MockMicrophone) StopRecording() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopCalls++
	m.recording = false
}

// IsRecording implements Microphone.
func (m *MockMicrophone) IsRecording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

// Calls returns the start and stop call counts.
func (m *MockMicrophone) Calls() (starts, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StartCalls, m.StopCalls
}

// PublishedControl captures one PublishControl call for assertions.
type PublishedControl struct {
	EventType string
	Text      string
}

// MockControl is a mock AvatarControl for testing.
type MockControl struct {
	mu sync.Mutex

	// Configurable behavior
	IntroText string
	Err       error

	// Captured calls for assertions
	Controls  []PublishedControl
	introSent bool
}

// PublishControl implements AvatarControl.
func (m *MockControl) PublishControl(eventType, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Controls = append(m.Controls, PublishedControl{EventType: eventType, Text: text})
	return m.Err
}

// Intro implements AvatarControl.
func (m *MockControl) Intro() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.IntroText
}

// MarkIntroSent implements AvatarControl.
func (m *MockControl) MarkIntroSent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.introSent {
		return false
	}
	m.introSent = true
	return true
}

// ResetIntro clears the intro-sent flag, as a new session would.
func (m *MockControl) ResetIntro() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.introSent = false
}

// Published returns a copy of the captured control messages.
func (m *MockControl) Published() []PublishedControl {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedControl, len(m.Controls))
	copy(out, m.Controls)
	return out
}
