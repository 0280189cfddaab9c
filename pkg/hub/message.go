// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern. It fans the
// conversation's status, transcript, and turn-state frames out to
// dashboard clients and feeds their commands back to the session.
package hub

import "encoding/json"

// Frame types broadcast to dashboard clients.
const (
	FrameStatus     = "status"
	FrameTranscript = "transcript"
	FrameTurnState  = "turn_state"
)

// Command types accepted from dashboard clients.
const (
	CommandMute   = "mute"
	CommandUnmute = "unmute"
	CommandSpeak  = "speak"
)

// Frame is one outbound dashboard message.
type Frame struct {
	Type string `json:"type"`

	// Status fields
	Status   string `json:"status,omitempty"`
	CanSpeak bool   `json:"can_speak,omitempty"`

	// Transcript fields
	Text     string `json:"text,omitempty"`
	FromUser bool   `json:"from_user,omitempty"`
	Final    bool   `json:"final,omitempty"`

	// Turn-state field
	State string `json:"state,omitempty"`
}

// Command is one inbound dashboard message.
type Command struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// StatusFrame builds a voice-status frame.
func StatusFrame(status string, canSpeak bool) Frame {
	return Frame{Type: FrameStatus, Status: status, CanSpeak: canSpeak}
}

// TranscriptFrame builds a transcript frame.
func TranscriptFrame(text string, fromUser, final bool) Frame {
	return Frame{Type: FrameTranscript, Text: text, FromUser: fromUser, Final: final}
}

// TurnStateFrame builds a turn-state frame.
func TurnStateFrame(state string) Frame {
	return Frame{Type: FrameTurnState, State: state}
}

// Encode marshals the frame for the wire. Marshal failures cannot occur
// for this shape, so the result is always valid JSON.
func (f Frame) Encode() []byte {
	data, _ := json.Marshal(f)
	return data
}
