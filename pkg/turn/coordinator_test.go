package turn

import (
	"testing"
	"time"

	"github.com/sellembedded/go-avatar/pkg/audioio"
	"github.com/sellembedded/go-avatar/pkg/events"
	"github.com/sellembedded/go-avatar/pkg/relay"
	"github.com/sellembedded/go-avatar/pkg/session"
	"github.com/sellembedded/go-avatar/pkg/transcribe"
)

func newTestCoordinator(t *testing.T, stt transcribe.Transcriber) (*Coordinator, *MockControl, *MockMicrophone, *relay.MockRecorder) {
	t.Helper()

	control := &MockControl{IntroText: "Welcome"}
	mic := &MockMicrophone{}
	recorder := relay.NewMockRecorder()

	cfg := DefaultConfig()
	cfg.SettleDelay = 5 * time.Millisecond
	cfg.RestartDelay = 5 * time.Millisecond
	cfg.ErrorRestartDelay = 5 * time.Millisecond
	cfg.IntroDelay = 5 * time.Millisecond
	cfg.HeuristicSilence = 20 * time.Millisecond

	c, err := NewCoordinator(control, mic, stt, recorder, cfg)
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	c.Start()
	t.Cleanup(c.Stop)
	return c, control, mic, recorder
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAvatarTurnFlushesOnce(t *testing.T) {
	c, _, _, recorder := newTestCoordinator(t, transcribe.NewMockTranscriber(""))

	c.SessionConnected()
	c.HandleEvent(events.Event{Kind: events.KindSpeechStart})
	c.HandleEvent(events.Event{Kind: events.KindSpeechChunk, Text: "Hel"})
	c.HandleEvent(events.Event{Kind: events.KindSpeechChunk, Text: "lo"})
	c.HandleEvent(events.Event{Kind: events.KindSpeechEnd})
	c.barrier()

	waitFor(t, "relay append", func() bool { return len(recorder.Messages()) == 1 })
	msg := recorder.Messages()[0]
	if msg.Content != "Hello" {
		t.Errorf("flushed text = %q, want chunks concatenated in order", msg.Content)
	}
	if msg.FromUser {
		t.Error("avatar speech must be logged as not from user")
	}
	if c.State() != StateListeningForUser {
		t.Errorf("state = %v, want listening after flush", c.State())
	}
}

func TestAtMostOneFlushPerTurn(t *testing.T) {
	c, _, _, recorder := newTestCoordinator(t, transcribe.NewMockTranscriber(""))

	c.SessionConnected()
	c.HandleEvent(events.Event{Kind: events.KindSpeechStart})
	c.HandleEvent(events.Event{Kind: events.KindSpeechChunk, Text: "Hi"})

	// Protocol end plus redundant end signals for the same turn.
	c.HandleEvent(events.Event{Kind: events.KindSpeechEnd})
	c.HandleEvent(events.Event{Kind: events.KindSpeechEnd})
	c.HandleEvent(events.Event{Kind: events.KindSpeechFinal})
	c.barrier()

	waitFor(t, "relay append", func() bool { return len(recorder.Messages()) >= 1 })
	time.Sleep(20 * time.Millisecond)
	if got := len(recorder.Messages()); got != 1 {
		t.Errorf("relay appends = %d, want exactly 1 per turn", got)
	}
}

func TestSpeechStartDiscardsInFlightAudio(t *testing.T) {
	stt := transcribe.NewMockTranscriber("should never be called")
	c, _, mic, _ := newTestCoordinator(t, stt)

	c.SessionConnected()
	c.barrier()
	if !mic.IsRecording() {
		t.Fatal("recording should start on connect")
	}

	c.HandleEvent(events.Event{Kind: events.KindSpeechStart})
	c.barrier()

	if c.State() != StateAvatarSpeaking {
		t.Fatalf("state = %v, want avatar speaking", c.State())
	}
	if mic.IsRecording() {
		t.Error("recording must stop when the avatar takes the turn")
	}

	// The stopped recording's delivery arrives late. It must be dropped
	// without a transcription call.
	c.HandleUtterance(make([]byte, 8192))
	c.barrier()
	if stt.CallCount() != 0 {
		t.Errorf("transcribe calls = %d, want 0 for discarded audio", stt.CallCount())
	}
}

func TestUtteranceDispatch(t *testing.T) {
	stt := transcribe.NewMockTranscriber("What are your opening hours?")
	c, control, mic, recorder := newTestCoordinator(t, stt)

	c.SessionConnected()
	c.HandleUtterance(make([]byte, 4096))
	c.barrier()

	if c.State() != StateProcessingUserUtterance {
		t.Fatalf("state = %v, want processing", c.State())
	}

	waitFor(t, "speak-response control", func() bool {
		for _, msg := range control.Published() {
			if msg.EventType == session.ControlSpeakResponse {
				return true
			}
		}
		return false
	})

	var speak PublishedControl
	for _, msg := range control.Published() {
		if msg.EventType == session.ControlSpeakResponse {
			speak = msg
		}
	}
	if speak.Text != "What are your opening hours?" {
		t.Errorf("dispatched text = %q", speak.Text)
	}

	waitFor(t, "user relay append", func() bool { return len(recorder.Messages()) == 1 })
	if !recorder.Messages()[0].FromUser {
		t.Error("user speech must be logged as from user")
	}

	// The avatar answers; when it finishes, recording resumes.
	c.HandleEvent(events.Event{Kind: events.KindSpeechStart})
	c.HandleEvent(events.Event{Kind: events.KindSpeechEnd})
	c.barrier()
	waitFor(t, "recording resume", func() bool { return mic.IsRecording() })
}

func TestSmallUtteranceRejected(t *testing.T) {
	stt := transcribe.NewMockTranscriber("noise")
	c, _, mic, _ := newTestCoordinator(t, stt)

	c.SessionConnected()
	c.barrier()
	mic.StopRecording()

	c.HandleUtterance(make([]byte, 100))
	c.barrier()

	if stt.CallCount() != 0 {
		t.Errorf("transcribe calls = %d, want 0 for sub-minimum audio", stt.CallCount())
	}
	if c.State() != StateListeningForUser {
		t.Errorf("state = %v, want listening", c.State())
	}
	waitFor(t, "recording restart", func() bool { return mic.IsRecording() })
}

func TestShortTranscriptRestartsListening(t *testing.T) {
	stt := transcribe.NewMockTranscriber("uh")
	c, control, _, _ := newTestCoordinator(t, stt)

	c.SessionConnected()
	c.HandleUtterance(make([]byte, 4096))
	c.barrier()

	waitFor(t, "transcription handled", func() bool { return c.State() == StateListeningForUser })
	for _, msg := range control.Published() {
		if msg.EventType == session.ControlSpeakResponse {
			t.Error("short transcripts must not be dispatched")
		}
	}
}

func TestQuotaExhaustionEntersDegradedMode(t *testing.T) {
	stt := transcribe.NewMockTranscriber("")
	stt.SetResult("", &transcribe.QuotaError{Message: "quota exceeded"})
	c, _, mic, _ := newTestCoordinator(t, stt)

	c.SessionConnected()
	c.HandleUtterance(make([]byte, 4096))
	c.barrier()

	waitFor(t, "degraded mode", func() bool { return c.Status().Text == StatusQuota })
	if stt.CallCount() != 1 {
		t.Fatalf("transcribe calls = %d, want 1", stt.CallCount())
	}

	// Later utterances restart recording but never retry the failing call.
	waitFor(t, "recording restart", func() bool { return mic.IsRecording() })
	c.HandleUtterance(make([]byte, 4096))
	c.barrier()
	if stt.CallCount() != 1 {
		t.Errorf("transcribe calls = %d, degraded mode must skip transcription", stt.CallCount())
	}

	// A fresh session clears degradation.
	c.SessionClosed()
	c.SessionConnected()
	c.HandleUtterance(make([]byte, 4096))
	c.barrier()
	waitFor(t, "transcription retried", func() bool { return stt.CallCount() == 2 })
}

func TestAvatarSpeakingIffLastTerminalWasStart(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, transcribe.NewMockTranscriber(""))
	c.SessionConnected()

	steps := []struct {
		ev   events.Event
		want State
	}{
		{events.Event{Kind: events.KindSpeechStart}, StateAvatarSpeaking},
		{events.Event{Kind: events.KindSpeechChunk, Text: "a"}, StateAvatarSpeaking},
		{events.Event{Kind: events.KindSpeechEnd}, StateListeningForUser},
		{events.Event{Kind: events.KindSpeechEnd}, StateListeningForUser},
		{events.Event{Kind: events.KindSpeechStart}, StateAvatarSpeaking},
		{events.Event{Kind: events.KindSpeechStart}, StateAvatarSpeaking},
		{events.Event{Kind: events.KindSpeechFinal, Text: "b"}, StateListeningForUser},
		{events.Event{Kind: events.KindSpeechChunk, Text: "stray"}, StateListeningForUser},
	}
	for i, step := range steps {
		c.HandleEvent(step.ev)
		c.barrier()
		if c.State() != step.want {
			t.Fatalf("step %d (%v): state = %v, want %v", i, step.ev.Kind, c.State(), step.want)
		}
	}
}

func TestHeuristicDrivesSameTransitions(t *testing.T) {
	c, _, mic, recorder := newTestCoordinator(t, transcribe.NewMockTranscriber(""))
	c.SessionConnected()
	c.barrier()

	loud := audioio.AudioChunk{Samples: make([]int16, 480), SampleRate: 48000, Channels: 1}
	for i := range loud.Samples {
		loud.Samples[i] = 12000
	}
	quiet := audioio.AudioChunk{Samples: make([]int16, 480), SampleRate: 48000, Channels: 1}

	// Rising edge infers avatar speech and stops the microphone.
	c.HandleRemoteAudio(quiet)
	c.HandleRemoteAudio(loud)
	c.barrier()
	if c.State() != StateAvatarSpeaking {
		t.Fatalf("state = %v, want avatar speaking on rising edge", c.State())
	}
	if mic.IsRecording() {
		t.Error("microphone must stop on inferred speech")
	}

	// A protocol chunk still buffers while the heuristic holds the turn.
	c.HandleEvent(events.Event{Kind: events.KindSpeechChunk, Text: "Hi there"})

	// Sustained silence infers the end of the turn.
	waitFor(t, "inferred end", func() bool {
		c.HandleRemoteAudio(quiet)
		c.barrier()
		return c.State() == StateListeningForUser
	})

	waitFor(t, "relay append", func() bool { return len(recorder.Messages()) == 1 })
	if recorder.Messages()[0].Content != "Hi there" {
		t.Errorf("flushed text = %q", recorder.Messages()[0].Content)
	}
}

func TestProtocolAndHeuristicNeverDoubleFlush(t *testing.T) {
	c, _, _, recorder := newTestCoordinator(t, transcribe.NewMockTranscriber(""))
	c.SessionConnected()

	loud := audioio.AudioChunk{Samples: []int16{15000, 15000, 15000, 15000}, SampleRate: 48000, Channels: 1}
	quiet := audioio.AudioChunk{Samples: []int16{0, 0, 0, 0}, SampleRate: 48000, Channels: 1}

	// Both producers signal the same turn.
	c.HandleEvent(events.Event{Kind: events.KindSpeechStart})
	c.HandleRemoteAudio(loud)
	c.HandleEvent(events.Event{Kind: events.KindSpeechChunk, Text: "once"})
	c.HandleEvent(events.Event{Kind: events.KindSpeechEnd})
	c.barrier()

	// Heuristic silence arriving after the protocol end must not re-flush.
	time.Sleep(25 * time.Millisecond)
	c.HandleRemoteAudio(quiet)
	c.HandleRemoteAudio(quiet)
	c.barrier()

	waitFor(t, "relay append", func() bool { return len(recorder.Messages()) >= 1 })
	time.Sleep(20 * time.Millisecond)
	if got := len(recorder.Messages()); got != 1 {
		t.Errorf("relay appends = %d, want 1", got)
	}
}

func TestIntroSpokenOncePerSession(t *testing.T) {
	c, control, _, _ := newTestCoordinator(t, transcribe.NewMockTranscriber(""))

	c.SessionConnected()
	waitFor(t, "intro publish", func() bool {
		for _, msg := range control.Published() {
			if msg.EventType == session.ControlSpeakText && msg.Text == "Welcome" {
				return true
			}
		}
		return false
	})

	// Reconnecting the same session does not repeat the greeting.
	c.SessionConnected()
	c.barrier()
	time.Sleep(20 * time.Millisecond)
	intros := 0
	for _, msg := range control.Published() {
		if msg.EventType == session.ControlSpeakText {
			intros++
		}
	}
	if intros != 1 {
		t.Errorf("intro publishes = %d, want 1", intros)
	}
}

func TestSessionClosedResetsEverything(t *testing.T) {
	stt := transcribe.NewMockTranscriber("hello")
	c, _, mic, _ := newTestCoordinator(t, stt)

	c.SessionConnected()
	c.HandleEvent(events.Event{Kind: events.KindSpeechStart})
	c.SessionClosed()
	c.barrier()

	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
	if mic.IsRecording() {
		t.Error("recording must stop on close")
	}

	// Deliveries and events after close are inert.
	c.HandleUtterance(make([]byte, 4096))
	c.HandleEvent(events.Event{Kind: events.KindSpeechStart}) // dropped while idle
	c.barrier()
	if stt.CallCount() != 0 {
		t.Error("no transcription after close")
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle to stay terminal", c.State())
	}
}

func TestMuteStopsAndResumesRecording(t *testing.T) {
	c, _, mic, _ := newTestCoordinator(t, transcribe.NewMockTranscriber(""))

	c.SessionConnected()
	c.barrier()
	c.SetMuted(true)
	c.barrier()
	if mic.IsRecording() {
		t.Error("mute must stop recording")
	}
	if c.Status().Text != StatusMuted {
		t.Errorf("status = %q, want muted", c.Status().Text)
	}

	// Muted deliveries are dropped without a restart.
	c.HandleUtterance(make([]byte, 4096))
	c.barrier()
	if c.State() != StateListeningForUser {
		t.Errorf("state = %v", c.State())
	}

	c.SetMuted(false)
	c.barrier()
	if !mic.IsRecording() {
		t.Error("unmute must resume recording")
	}
}

func TestUtteranceBufferRoundTrip(t *testing.T) {
	var b UtteranceBuffer
	b.Append("The ")
	b.Append("")
	b.Append("quick ")
	b.Append("fox")

	if got := b.Flush(); got != "The quick fox" {
		t.Errorf("Flush() = %q, want chunks in arrival order", got)
	}
	if b.Len() != 0 {
		t.Error("Flush() must reset the buffer")
	}
	if got := b.Flush(); got != "" {
		t.Errorf("second Flush() = %q, want empty", got)
	}
}
