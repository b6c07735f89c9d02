package session

// State is a session's lifecycle position:
// Created -> Streaming -> {Expired, ShutdownRequested} -> Terminated.
type State int32

const (
	StateCreated State = iota
	StateStreaming
	StateExpired
	StateShutdownRequested
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStreaming:
		return "streaming"
	case StateExpired:
		return "expired"
	case StateShutdownRequested:
		return "shutdown_requested"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
