package handshake

import "fmt"

// State is the lifecycle state of a connection.
type State uint32

const (
	StateDisconnected State = iota
	StateInit
	StateHandshake
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateInit:
		return "init"
	case StateHandshake:
		return "handshake"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}
