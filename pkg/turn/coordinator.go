// Package turn arbitrates the conversational turn between the user and
// the avatar. A single event loop owns all state: normalized server
// events, capture deliveries, remote audio levels, and timers all feed
// one transition function, so protocol-driven and heuristic-driven paths
// converge on the same machine and can never double-fire a turn.
package turn

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sellembedded/go-avatar/pkg/audioio"
	"github.com/sellembedded/go-avatar/pkg/events"
	"github.com/sellembedded/go-avatar/pkg/relay"
	"github.com/sellembedded/go-avatar/pkg/session"
	"github.com/sellembedded/go-avatar/pkg/transcribe"
)

// Voice status strings surfaced to the UI.
const (
	StatusIdle       = "Voice idle"
	StatusSpeak      = "Please speak"
	StatusAvatar     = "Avatar is speaking..."
	StatusProcessing = "Processing..."
	StatusResponding = "Processing response..."
	StatusQuota      = "Voice unavailable - transcription quota exceeded"
	StatusError      = "Error processing audio"
	StatusMuted      = "Microphone muted"
	StatusStopped    = "Voice stopped"
)

// AvatarControl is the outbound control surface of the session client.
type AvatarControl interface {
	PublishControl(eventType, text string) error
	Intro() string
	MarkIntroSent() bool
}

// Microphone is the command surface of the voice capture engine. The
// coordinator only issues start/stop; it never touches the capture
// primitives directly.
type Microphone interface {
	StartRecording() error
	StopRecording()
	IsRecording() bool
}

// Status is the single user-visible surface of the coordinator.
type Status struct {
	Text     string
	CanSpeak bool
}

// Transcript is one finalized or streaming piece of conversation text.
type Transcript struct {
	Text     string
	FromUser bool
	Final    bool
}

type timerKind int

const (
	timerRestart timerKind = iota
	timerIntro
)

// Events posted into the coordinator loop.
type (
	evConnected   struct{}
	evClosed      struct{}
	evNormalized  struct{ ev events.Event }
	evUtterance   struct{ audio []byte }
	evTranscribed struct {
		gen  uint64
		text string
		err  error
	}
	evTimer struct {
		gen  uint64
		kind timerKind
		text string
	}
	evLevel struct {
		level float64
		at    time.Time
	}
	evMute struct{ muted bool }
	evSync struct{ done chan struct{} }
)

// Coordinator is the turn-taking state machine. All transitions run on
// one goroutine; external callers only post events.
type Coordinator struct {
	config   Config
	logger   *slog.Logger
	control  AvatarControl
	mic      Microphone
	stt      transcribe.Transcriber
	recorder relay.Recorder

	eventCh  chan any
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	stateVal atomic.Int32

	mu           sync.RWMutex
	status       Status
	onStatus     func(Status)
	onTranscript func(Transcript)

	// Loop-owned state. Touched only from run().
	state    State
	buffer   UtteranceBuffer
	muted    bool
	degraded bool
	flushed  bool
	turnGen  uint64

	lastLevel    float64
	silenceSince time.Time
}

// NewCoordinator creates a coordinator over the given collaborators.
func NewCoordinator(control AvatarControl, mic Microphone, stt transcribe.Transcriber, recorder relay.Recorder, config Config) (*Coordinator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		config:   config,
		logger:   config.Logger.With("component", "turn"),
		control:  control,
		mic:      mic,
		stt:      stt,
		recorder: recorder,
		eventCh:  make(chan any, config.QueueSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		status:   Status{Text: StatusIdle},
	}
	return c, nil
}

// Start launches the event loop.
func (c *Coordinator) Start() {
	go c.run()
}

// Stop terminates the event loop. Safe to call repeatedly.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
}

// State returns the current turn state.
func (c *Coordinator) State() State {
	return State(c.stateVal.Load())
}

// Status returns the current user-visible status.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// OnStatus registers a callback for status changes.
func (c *Coordinator) OnStatus(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// OnTranscript registers a callback for conversation text.
func (c *Coordinator) OnTranscript(fn func(Transcript)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTranscript = fn
}

// SessionConnected tells the coordinator the session is live.
func (c *Coordinator) SessionConnected() {
	c.post(evConnected{})
}

// SessionClosed tells the coordinator the session ended.
func (c *Coordinator) SessionClosed() {
	c.post(evClosed{})
}

// HandleEvent feeds one normalized server event into the machine.
func (c *Coordinator) HandleEvent(ev events.Event) {
	c.post(evNormalized{ev: ev})
}

// HandleUtterance feeds one completed capture delivery into the machine.
func (c *Coordinator) HandleUtterance(audio []byte) {
	c.post(evUtterance{audio: audio})
}

// HandleRemoteAudio feeds a remote avatar audio frame into the level
// heuristic. Frames arriving faster than the loop drains are dropped;
// the heuristic only needs a coarse envelope.
func (c *Coordinator) HandleRemoteAudio(chunk audioio.AudioChunk) {
	ev := evLevel{level: chunk.Level(), at: time.Now()}
	select {
	case c.eventCh <- ev:
	case <-c.stopCh:
	default:
	}
}

// SetMuted toggles the microphone.
func (c *Coordinator) SetMuted(muted bool) {
	c.post(evMute{muted: muted})
}

func (c *Coordinator) post(ev any) {
	select {
	case c.eventCh <- ev:
	case <-c.stopCh:
	}
}

func (c *Coordinator) run() {
	defer close(c.doneCh)
	for {
		select {
		case <-c.stopCh:
			return
		case ev := <-c.eventCh:
			c.handle(ev)
		}
	}
}

func (c *Coordinator) handle(ev any) {
	switch e := ev.(type) {
	case evConnected:
		c.handleConnected()
	case evClosed:
		c.handleClosed()
	case evNormalized:
		c.handleNormalized(e.ev)
	case evUtterance:
		c.handleUtterance(e.audio)
	case evTranscribed:
		c.handleTranscribed(e)
	case evTimer:
		c.handleTimer(e)
	case evLevel:
		c.handleLevel(e)
	case evMute:
		c.handleMute(e.muted)
	case evSync:
		close(e.done)
	}
}

func (c *Coordinator) handleConnected() {
	c.turnGen++
	c.setState(StateListeningForUser)
	c.buffer.Reset()
	c.flushed = false
	c.degraded = false
	c.muted = false
	c.lastLevel = 0
	c.silenceSince = time.Time{}

	c.setStatus(StatusSpeak, true)
	if !c.muted {
		if err := c.mic.StartRecording(); err != nil {
			c.logger.Warn("recording start failed", "error", err)
		}
	}

	// Greet once per session, after the channel has had a beat to open.
	if c.control.MarkIntroSent() {
		intro := c.control.Intro()
		if intro == "" {
			intro = c.config.Intro
		}
		c.scheduleTimer(c.config.IntroDelay, timerIntro, intro)
	}
}

func (c *Coordinator) handleClosed() {
	c.turnGen++
	c.setState(StateIdle)
	c.buffer.Reset()
	c.flushed = false
	c.degraded = false
	c.silenceSince = time.Time{}
	c.mic.StopRecording()
	c.setStatus(StatusStopped, false)
}

func (c *Coordinator) handleNormalized(ev events.Event) {
	if c.state == StateIdle {
		return
	}

	switch ev.Kind {
	case events.KindSpeechStart:
		c.beginAvatarTurn()
	case events.KindSpeechChunk:
		c.buffer.Append(ev.Text)
		c.emitTranscript(Transcript{Text: ev.Text, FromUser: false, Final: false})
	case events.KindSpeechEnd:
		c.endAvatarTurn()
	case events.KindSpeechFinal:
		c.buffer.Append(ev.Text)
		c.endAvatarTurn()
	case events.KindUserUtterance:
		c.emitTranscript(Transcript{Text: ev.Text, FromUser: true, Final: true})
	}
}

// beginAvatarTurn enters AvatarSpeaking. The state changes before the
// recording stop is issued so a stray capture delivery racing the stop
// cannot be processed as user speech.
func (c *Coordinator) beginAvatarTurn() {
	if c.state == StateAvatarSpeaking {
		return
	}
	c.turnGen++
	c.buffer.Reset()
	c.flushed = false
	c.silenceSince = time.Time{}

	c.setState(StateAvatarSpeaking)
	c.mic.StopRecording()

	c.setStatus(StatusAvatar, false)
	c.logger.Debug("avatar turn begins")
}

// endAvatarTurn flushes the buffered avatar text exactly once and hands
// the turn back to the user after the settle delay.
func (c *Coordinator) endAvatarTurn() {
	if c.state != StateAvatarSpeaking {
		return
	}

	text := c.buffer.Flush()
	if !c.flushed {
		c.flushed = true
		if text != "" {
			c.emitTranscript(Transcript{Text: text, FromUser: false, Final: true})
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := c.recorder.AppendMessage(ctx, text, false); err != nil {
					c.logger.Warn("transcript append failed", "error", err)
				}
			}()
		}
	}

	c.setState(StateListeningForUser)
	c.silenceSince = time.Time{}
	c.setStatus(StatusSpeak, true)
	c.scheduleTimer(c.config.SettleDelay, timerRestart, "")
	c.logger.Debug("avatar turn ends", "chars", len(text))
}

func (c *Coordinator) handleUtterance(audio []byte) {
	if c.state != StateListeningForUser || c.muted {
		// The avatar took the turn or the session ended while this
		// delivery was in flight. Discard without transcription.
		return
	}

	if c.degraded {
		c.setStatus(StatusQuota, false)
		c.scheduleTimer(c.config.RestartDelay, timerRestart, "")
		return
	}

	if len(audio) < c.config.MinUtteranceBytes {
		// Too small to be speech; keep listening.
		c.scheduleTimer(c.config.RestartDelay, timerRestart, "")
		return
	}

	c.setState(StateProcessingUserUtterance)
	c.setStatus(StatusProcessing, false)

	gen := c.turnGen
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		text, err := c.stt.Transcribe(ctx, audio)
		c.post(evTranscribed{gen: gen, text: text, err: err})
	}()
}

func (c *Coordinator) handleTranscribed(e evTranscribed) {
	if e.gen != c.turnGen || c.state != StateProcessingUserUtterance {
		// The turn moved on while transcription was in flight.
		return
	}

	if e.err != nil {
		if transcribe.IsQuotaError(e.err) {
			c.degraded = true
			c.setState(StateListeningForUser)
			c.setStatus(StatusQuota, false)
			c.scheduleTimer(c.config.RestartDelay, timerRestart, "")
			c.logger.Warn("transcription quota exhausted, entering degraded mode")
			return
		}
		c.setState(StateListeningForUser)
		c.setStatus(StatusError, false)
		c.scheduleTimer(c.config.ErrorRestartDelay, timerRestart, "")
		c.logger.Warn("transcription failed", "error", e.err)
		return
	}

	text := strings.TrimSpace(e.text)
	if len(text) <= c.config.MinTranscriptChars {
		c.setState(StateListeningForUser)
		c.setStatus(StatusSpeak, true)
		c.scheduleTimer(c.config.RestartDelay, timerRestart, "")
		return
	}

	c.emitTranscript(Transcript{Text: text, FromUser: true, Final: true})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := c.recorder.AppendMessage(ctx, text, true); err != nil {
			c.logger.Warn("transcript append failed", "error", err)
		}
	}()

	if err := c.control.PublishControl(session.ControlSpeakResponse, text); err != nil {
		c.logger.Warn("speak request failed", "error", err)
	}
	c.setStatus(StatusResponding, false)
	// Stay in ProcessingUserUtterance until the avatar's speech-start
	// arrives; recording resumes when its turn ends.
}

func (c *Coordinator) handleTimer(e evTimer) {
	if e.gen != c.turnGen {
		// A newer turn invalidated this timer.
		return
	}

	switch e.kind {
	case timerRestart:
		if c.state == StateListeningForUser && !c.muted && !c.mic.IsRecording() {
			if err := c.mic.StartRecording(); err != nil {
				c.logger.Warn("recording restart failed", "error", err)
			}
		}
	case timerIntro:
		if c.state != StateIdle {
			if err := c.control.PublishControl(session.ControlSpeakText, e.text); err != nil {
				c.logger.Warn("intro publish failed", "error", err)
			}
		}
	}
}

// handleLevel runs the energy heuristic on the remote avatar track:
// a rising edge past the threshold infers speech start, a sustained
// falling edge infers speech end. Both paths feed the same transitions
// as the protocol events, which deduplicate by state.
func (c *Coordinator) handleLevel(e evLevel) {
	if c.state == StateIdle {
		c.lastLevel = e.level
		return
	}

	if e.level > c.config.HeuristicThreshold {
		if c.lastLevel <= c.config.HeuristicThreshold && c.state != StateAvatarSpeaking {
			c.logger.Debug("avatar speech inferred from audio level", "level", e.level)
			c.beginAvatarTurn()
		}
		c.silenceSince = time.Time{}
	} else if c.state == StateAvatarSpeaking {
		if c.silenceSince.IsZero() {
			c.silenceSince = e.at
		} else if e.at.Sub(c.silenceSince) >= c.config.HeuristicSilence {
			c.logger.Debug("avatar silence inferred from audio level")
			c.endAvatarTurn()
		}
	}

	c.lastLevel = e.level
}

func (c *Coordinator) handleMute(muted bool) {
	c.muted = muted
	if muted {
		c.mic.StopRecording()
		c.setStatus(StatusMuted, false)
		return
	}
	if c.state == StateListeningForUser {
		c.setStatus(StatusSpeak, true)
		if err := c.mic.StartRecording(); err != nil {
			c.logger.Warn("recording start failed", "error", err)
		}
	}
}

func (c *Coordinator) scheduleTimer(d time.Duration, kind timerKind, text string) {
	gen := c.turnGen
	time.AfterFunc(d, func() {
		select {
		case c.eventCh <- evTimer{gen: gen, kind: kind, text: text}:
		case <-c.stopCh:
		}
	})
}

func (c *Coordinator) setState(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("turn transition", "from", c.state, "to", s)
	c.state = s
	c.stateVal.Store(int32(s))
}

func (c *Coordinator) setStatus(text string, canSpeak bool) {
	c.mu.Lock()
	c.status = Status{Text: text, CanSpeak: canSpeak}
	fn := c.onStatus
	status := c.status
	c.mu.Unlock()
	if fn != nil {
		fn(status)
	}
}

func (c *Coordinator) emitTranscript(t Transcript) {
	c.mu.RLock()
	fn := c.onTranscript
	c.mu.RUnlock()
	if fn != nil {
		fn(t)
	}
}

// barrier blocks until every event posted before it has been handled.
func (c *Coordinator) barrier() {
	done := make(chan struct{})
	c.post(evSync{done: done})
	select {
	case <-done:
	case <-c.stopCh:
	}
}
