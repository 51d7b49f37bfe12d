package link

// State of the proxy connection.
type State int32

const (
	StateDisabled State = iota
	StateDisconnected
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	default:
		return "disabled"
	}
}
