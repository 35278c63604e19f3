package session

// State is the session lifecycle position. INTERRUPTED is a transient
// state entered from SPEAKING when barge-in is detected.
type State int32

const (
	StateConnecting State = iota
	StateReady
	StateListening
	StateSpeaking
	StateInterrupted
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StateListening:
		return "LISTENING"
	case StateSpeaking:
		return "SPEAKING"
	case StateInterrupted:
		return "INTERRUPTED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
