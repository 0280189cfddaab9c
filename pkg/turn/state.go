package turn

// State represents who holds the conversational turn. Exactly one state
// is active at a time; this mutual exclusion is what keeps the
// microphone from hearing the avatar.
type State int

const (
	// StateIdle means no session is active.
	StateIdle State = iota
	// StateListeningForUser means the microphone may record.
	StateListeningForUser
	// StateProcessingUserUtterance means a captured utterance is being
	// transcribed or dispatched.
	StateProcessingUserUtterance
	// StateAvatarSpeaking means the avatar holds the turn and the
	// microphone must stay silent.
	StateAvatarSpeaking
)

// String returns a human-readable turn state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListeningForUser:
		return "listening"
	case StateProcessingUserUtterance:
		return "processing"
	case StateAvatarSpeaking:
		return "avatar_speaking"
	default:
		return "unknown"
	}
}
