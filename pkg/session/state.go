package session

// ConnectionState represents the session lifecycle state.
// Transitions are strictly forward except the teardown edge back to Idle.
type ConnectionState int

const (
	// StateIdle indicates no session activity.
	StateIdle ConnectionState = iota
	// StateTokenAcquired indicates a session token is held.
	StateTokenAcquired
	// StateStarting indicates the media room is being provisioned.
	StateStarting
	// StateConnected indicates both the media transport handshake and the
	// control handshake succeeded.
	StateConnected
	// StateClosing indicates teardown is in progress.
	StateClosing
	// StateClosed indicates teardown completed.
	StateClosed
)

// String returns a human-readable connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTokenAcquired:
		return "token_acquired"
	case StateStarting:
		return "starting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
