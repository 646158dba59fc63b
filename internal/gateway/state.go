package gateway

// State is the connection's position in the protocol. A connection is
// in exactly one state; all session mutation happens on transitions.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHello
	StateIdentifying
	StateResuming
	StateReady
	StateDispatching
	StateReconnecting
	StateClosed
)

var stateNames = map[State]string{
	StateDisconnected:  "disconnected",
	StateConnecting:    "connecting",
	StateAwaitingHello: "awaiting_hello",
	StateIdentifying:   "identifying",
	StateResuming:      "resuming",
	StateReady:         "ready",
	StateDispatching:   "dispatching",
	StateReconnecting:  "reconnecting",
	StateClosed:        "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "state(?)"
}
