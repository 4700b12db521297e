package session

type State int

const (
	StateCreated State = iota
	StateModeSelected
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateModeSelected:
		return "mode_selected"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	stopReasonCallerHungUp    = "caller hung up"
	stopReasonInactivity      = "inactivity timeout"
	stopReasonServerClosed    = "server shutting down"
	stopReasonTransportClosed = "media stream closed"
	stopReasonPolicy          = "prohibited backend detected"
	stopReasonUnknownError    = "unknown error"
)

// StopReasonTransportClosed is used by transports when the media stream
// disconnects without a stop event.
const StopReasonTransportClosed = stopReasonTransportClosed
