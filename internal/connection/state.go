package connection

// State is the lifecycle state of a connection attempt. It is owned by
// the Controller; nothing else mutates it.
type State int

const (
	StateIdle State = iota
	StatePreConnecting
	StateAwaitingInterface
	StatePostConnecting
	StateConnected
	StateLeakDetected
	StateDisconnecting
	StateDisconnected
	StateFailed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreConnecting:
		return "pre-connecting"
	case StateAwaitingInterface:
		return "awaiting-interface"
	case StatePostConnecting:
		return "post-connecting"
	case StateConnected:
		return "connected"
	case StateLeakDetected:
		return "leak-detected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
