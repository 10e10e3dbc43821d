package pipeline

// State is the Camera Pipeline's tagged state. Transitions
// are driven exclusively by the pipeline's own worker goroutine; the
// Registry and host only observe a monotonic stream of state-change events
// through StatusCallback.
type State int

const (
	// StateStopped is the terminal state, reached after the worker releases
	// all media resources.
	StateStopped State = iota
	// StateConnecting is the initial state: opening the input and setting up
	// the decoder. Unboundedly retried until stop.
	StateConnecting
	// StateConnected means frames are flowing.
	StateConnected
	// StateDisconnected is entered on EOF, read error, or stall detection.
	StateDisconnected
	// StateWaitingReconnect is the back-off sleep between disconnect and retry.
	StateWaitingReconnect
	// StateReconnecting is the brief state between the back-off sleep ending
	// and the next open attempt (folds back into StateConnecting's retry
	// loop once the attempt starts).
	StateReconnecting
)

// StatusCode maps a State onto the wire-level status codes of the host
// callback contract.
func (s State) StatusCode() int {
	switch s {
	case StateStopped:
		return 0
	case StateConnecting:
		return 1
	case StateConnected:
		return 2
	case StateDisconnected:
		return 3
	case StateWaitingReconnect:
		return 4
	case StateReconnecting:
		return 5
	default:
		return -1
	}
}

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnected:
		return "Disconnected"
	case StateWaitingReconnect:
		return "WaitingReconnect"
	case StateReconnecting:
		return "Reconnecting"
	default:
		return "Unknown"
	}
}
