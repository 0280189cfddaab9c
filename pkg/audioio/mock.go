package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a synthetic audio source for testing.
// It generates silence or a sine wave; amplitude is adjustable at runtime
// so tests can script speech-then-silence timelines.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan AudioChunk
	stopCh   chan struct{}

	chunksRead  atomic.Int64
	samplesRead atomic.Int64

	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude atomic.Uint64 // math.Float64bits
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude.Store(math.Float64bits(amplitude))
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:      cfg,
		logger:   logger,
		streamCh: make(chan AudioChunk, 10),
		stopCh:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// SetAmplitude changes the generated amplitude (0 silences the source).
// Safe to call while the source is running.
func (m *MockSource) SetAmplitude(a float64) {
	m.amplitude.Store(math.Float64bits(a))
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.streamCh = make(chan AudioChunk, 10)

	go m.generateLoop(ctx)

	m.logger.Debug("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"frequency", m.frequency,
	)

	return nil
}

func (m *MockSource) generateLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.BufferDuration)
	defer ticker.Stop()

	// The generator owns streamCh: it is closed here, never in Stop,
	// so a racing tick cannot send on a closed channel.
	stream := m.streamCh
	stop := m.stopCh
	defer close(stream)

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-stop:
			return
		case <-ticker.C:
			chunk := m.generateChunk()
			select {
			case stream <- chunk:
				m.chunksRead.Add(1)
				m.samplesRead.Add(int64(len(chunk.Samples)))
			default:
				// Buffer full, drop chunk (overrun)
				m.logger.Debug("mock source: buffer full, dropping chunk")
			}
		}
	}
}

func (m *MockSource) generateChunk() AudioChunk {
	bufferSize := m.cfg.BufferSize()
	samples := make([]int16, bufferSize)

	amp := math.Float64frombits(m.amplitude.Load())
	if m.frequency > 0 && amp > 0 {
		step := 2 * math.Pi * m.frequency / float64(m.cfg.SampleRate)
		for i := range samples {
			samples[i] = int16(amp * 32767 * math.Sin(m.phase))
			m.phase += step
		}
	}

	return AudioChunk{
		Samples:    samples,
		SampleRate: m.cfg.SampleRate,
		Channels:   m.cfg.Channels,
	}
}

// Stop halts generation.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false
	close(m.stopCh)
	return nil
}

// Read reads the next chunk, blocking until one is available.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-m.streamCh:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the chunk channel.
func (m *MockSource) Stream() <-chan AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCh
}

// Config returns the source configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns the backend name.
func (m *MockSource) Name() string {
	return "mock"
}

// Close releases the source.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.running {
		m.running = false
		close(m.stopCh)
	}
	m.closed = true
	m.mu.Unlock()
	return nil
}
