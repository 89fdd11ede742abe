package model

// ConnectionState is the Game Coordinator channel's coarse state.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	// Connected means the transport is up but the backend has not yet
	// acknowledged the session.
	Connected
	// HandshakeComplete means session state from the backend is authoritative.
	HandshakeComplete
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connected:
		return "Connected"
	case HandshakeComplete:
		return "HandshakeComplete"
	default:
		return "Unknown"
	}
}
