package session

// Phase is one state of the top-level connection lifecycle (spec §4.9).
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseConnected  Phase = "connected"
	PhaseError      Phase = "error"
	PhaseClosed     Phase = "closed"
)

// StateChange is delivered to a Session's observer on every phase
// transition. Err is set only when Phase is PhaseError.
type StateChange struct {
	Phase Phase
	Err   error
}

func canRequestConnect(p Phase) bool {
	switch p {
	case PhaseIdle, PhaseError, PhaseClosed:
		return true
	default:
		return false
	}
}
