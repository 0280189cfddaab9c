// Package capture owns microphone acquisition and chunked utterance
// recording. The engine keeps the source open across record cycles and
// turns continuous capture into discrete utterances with energy-based
// silence detection; no push-to-talk is required.
//
// Delivery is unconditional: every stopped recording fires the completion
// callback exactly once, even for tiny buffers. Minimum-size rejection is
// the caller's policy, not the engine's.
package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sellembedded/go-avatar/pkg/audioio"
)

// State represents the engine lifecycle state.
type State int

const (
	// StateUninitialized means the microphone has not been acquired.
	StateUninitialized State = iota
	// StateReady means the microphone is open but not recording.
	StateReady
	// StateRecording means audio is being accumulated.
	StateRecording
)

// String returns a human-readable state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// recordingSession tracks one recording's exactly-once delivery.
type recordingSession struct {
	stopCh  chan struct{}
	stopped sync.Once
	deliver sync.Once
}

// Engine is the voice capture engine. It reads the source continuously
// once initialized (so AudioLevel stays live) and accumulates chunks only
// while a recording is active.
type Engine struct {
	cfg    Config
	source audioio.Source
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	buf     []byte
	session *recordingSession
	cancel  context.CancelFunc

	level atomic.Uint64 // math.Float64bits of the last observed level

	onUtterance func(audio []byte)
	onError     func(err error)
}

// NewEngine creates a capture engine over the given source.
func NewEngine(source audioio.Source, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		source: source,
		logger: logger.With("component", "capture.engine"),
	}, nil
}

// OnUtterance sets the completion callback. It receives the accumulated
// audio of each finished recording.
func (e *Engine) OnUtterance(fn func(audio []byte)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUtterance = fn
}

// OnError sets the error callback.
func (e *Engine) OnError(fn func(err error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onError = fn
}

// State returns the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsRecording reports whether a recording is active.
func (e *Engine) IsRecording() bool {
	return e.State() == StateRecording
}

// Initialize acquires the microphone. The source is reused across record
// cycles until Cleanup.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateUninitialized {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if err := e.source.Start(ctx); err != nil {
		return classifyStartError(err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.state = StateReady
	e.cancel = cancel
	e.mu.Unlock()

	go e.readLoop(loopCtx)

	e.logger.Info("microphone acquired", "backend", e.source.Name())
	return nil
}

// StartRecording begins accumulating audio. No-op if already recording.
// While energy stays below the silence threshold for longer than the
// configured duration, the recording auto-stops and the buffer is
// delivered via the completion callback.
func (e *Engine) StartRecording() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateUninitialized:
		return ErrNotInitialized
	case StateRecording:
		return nil
	}

	e.buf = nil
	e.session = &recordingSession{stopCh: make(chan struct{})}
	e.state = StateRecording
	e.logger.Debug("recording started")
	return nil
}

// StopRecording explicitly stops the active recording. The completion
// callback fires exactly once; if the capture loop does not acknowledge
// within the fallback window, delivery is forced from a timer.
func (e *Engine) StopRecording() {
	e.mu.Lock()
	if e.state != StateRecording || e.session == nil {
		e.mu.Unlock()
		return
	}
	session := e.session
	e.mu.Unlock()

	session.stopped.Do(func() { close(session.stopCh) })

	// Fallback: force delivery if the loop is wedged on a slow source.
	time.AfterFunc(e.cfg.StopFallback, func() {
		e.finishRecording(session)
	})
}

// AudioLevel returns the most recent normalized energy level in [0,1].
// Side-effect free.
func (e *Engine) AudioLevel() float64 {
	return math.Float64frombits(e.level.Load())
}

// Cleanup releases the microphone and resets to Uninitialized.
// Safe to call from any state; a pending recording is discarded.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.state = StateUninitialized
	e.session = nil
	e.buf = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = e.source.Stop()
	e.level.Store(0)
	e.logger.Debug("microphone released")
}

// readLoop consumes the source for the lifetime of the initialization.
// It feeds the level meter always and the recording buffer while active.
func (e *Engine) readLoop(ctx context.Context) {
	var silence time.Duration

	for {
		chunk, err := e.source.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return
			}
			e.emitError(err)
			return
		}

		level := chunk.Level()
		e.level.Store(math.Float64bits(level))

		e.mu.Lock()
		recording := e.state == StateRecording
		session := e.session
		if recording {
			e.buf = append(e.buf, chunk.Bytes()...)
		}
		e.mu.Unlock()

		if !recording || session == nil {
			silence = 0
			continue
		}

		select {
		case <-session.stopCh:
			e.finishRecording(session)
			silence = 0
			continue
		default:
		}

		// Energy at or above threshold resets the silence timer.
		if level >= e.cfg.SilenceThreshold {
			silence = 0
			continue
		}

		silence += time.Duration(chunk.Duration() * float64(time.Second))
		if silence > e.cfg.SilenceDuration {
			e.logger.Debug("auto-stop on silence", "silence", silence)
			session.stopped.Do(func() { close(session.stopCh) })
			e.finishRecording(session)
			silence = 0
		}
	}
}

// finishRecording transitions out of Recording and delivers the buffer
// exactly once for the given session.
func (e *Engine) finishRecording(session *recordingSession) {
	session.deliver.Do(func() {
		e.mu.Lock()
		if e.session != session {
			// Superseded by Cleanup; the pending buffer is discarded.
			e.mu.Unlock()
			return
		}
		audio := e.buf
		e.buf = nil
		e.session = nil
		if e.state == StateRecording {
			e.state = StateReady
		}
		fn := e.onUtterance
		e.mu.Unlock()

		if fn != nil {
			fn(audio)
		}
	})
}

func (e *Engine) emitError(err error) {
	e.mu.Lock()
	fn := e.onError
	e.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// classifyStartError maps source failures onto the capture error taxonomy.
func classifyStartError(err error) error {
	if errors.Is(err, io.ErrClosedPipe) {
		return ErrClosed
	}
	return errors.Join(ErrMediaUnavailable, err)
}
