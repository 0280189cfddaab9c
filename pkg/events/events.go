// Package events normalizes provider-specific avatar session payloads into
// a single internal event vocabulary. Providers differ on discriminator
// field names and on streamed-vs-batched text delivery; downstream code
// only ever sees the internal Kind set.
package events

// Kind identifies a normalized session event.
type Kind string

const (
	// KindSpeechStart signals the avatar started speaking.
	KindSpeechStart Kind = "speech_start"

	// KindSpeechEnd signals the avatar stopped speaking.
	KindSpeechEnd Kind = "speech_end"

	// KindSpeechChunk carries one streamed fragment of avatar speech text.
	KindSpeechChunk Kind = "speech_chunk"

	// KindSpeechFinal carries the full (or terminal) avatar speech text.
	KindSpeechFinal Kind = "speech_final"

	// KindUserUtterance carries a provider-side transcription of the user.
	KindUserUtterance Kind = "user_utterance"
)

// Event is a normalized session event.
type Event struct {
	Kind Kind

	// Text is set for chunk, final and user-utterance events.
	Text string
}

// IsStart reports whether the event opens an avatar turn.
func (e Event) IsStart() bool {
	return e.Kind == KindSpeechStart
}

// IsTerminal reports whether the event closes an avatar turn.
func (e Event) IsTerminal() bool {
	return e.Kind == KindSpeechEnd || e.Kind == KindSpeechFinal
}
