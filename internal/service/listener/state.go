package listener

// State is a connection lifecycle state.
type State int

const (
	// StateDisconnected means there is no broker session.
	StateDisconnected State = iota
	// StateConnecting is the first connection attempt.
	StateConnecting
	// StateConnected means the session is up and subscriptions are in place.
	StateConnected
	// StateReconnecting is any attempt after a lost or failed session.
	StateReconnecting
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "invalid"
	}
}

// StateObserver is notified of every state transition.
type StateObserver interface {
	ObserveState(state string, connected bool)
}
