package events

import "encoding/json"

// ResponseTopic is the data-channel topic carrying provider-originated
// session events. Payloads on any other non-empty topic are cross-talk
// and are discarded.
const ResponseTopic = "agent-response"

// rawEvent covers the field shapes observed across providers. Some send
// event_type, older ones send type; text may arrive as text or message.
type rawEvent struct {
	EventType string `json:"event_type"`
	Type      string `json:"type"`
	Text      *string `json:"text"`
	Message   *string `json:"message"`
}

func (r rawEvent) discriminator() string {
	if r.EventType != "" {
		return r.EventType
	}
	return r.Type
}

func (r rawEvent) text() (string, bool) {
	if r.Text != nil {
		return *r.Text, true
	}
	if r.Message != nil {
		return *r.Message, true
	}
	return "", false
}

// Normalize translates one raw data-channel payload into an internal
// event. The boolean is false when the payload should be ignored:
// wrong topic, undecodable JSON, or a recognized-but-empty event.
// Malformed frames are expected noise on a shared channel, not errors.
func Normalize(raw []byte, topic string) (Event, bool) {
	if topic != "" && topic != ResponseTopic {
		return Event{}, false
	}

	var r rawEvent
	if err := json.Unmarshal(raw, &r); err != nil {
		return Event{}, false
	}

	switch r.discriminator() {
	case "avatar.speak_started", "agent.speak_started", "avatar_start_talking":
		return Event{Kind: KindSpeechStart}, true

	case "avatar.speak_ended", "agent.speak_ended", "avatar_stop_talking":
		return Event{Kind: KindSpeechEnd}, true

	case "avatar.transcription", "avatar_talking_message":
		// Streamed per word/phrase while the avatar speaks.
		if text, ok := r.text(); ok {
			return Event{Kind: KindSpeechChunk, Text: text}, true
		}
		return Event{}, false

	case "avatar_end_message":
		text, _ := r.text()
		return Event{Kind: KindSpeechFinal, Text: text}, true

	case "user.transcription":
		if text, ok := r.text(); ok {
			return Event{Kind: KindUserUtterance, Text: text}, true
		}
		return Event{}, false
	}

	// Unknown discriminator but the payload carries text: degrade to a
	// final-text event so textual events are never silently lost.
	if text, ok := r.text(); ok && text != "" {
		return Event{Kind: KindSpeechFinal, Text: text}, true
	}

	return Event{}, false
}
