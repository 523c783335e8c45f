package session

import "fmt"

// InvalidPhaseError reports a RequestConnect call made from a phase that
// does not permit it (spec §4.9: only Idle, Error, or Closed may connect).
type InvalidPhaseError struct {
	Phase Phase
}

func (e *InvalidPhaseError) Error() string {
	return fmt.Sprintf("session: cannot request connect from phase %q", e.Phase)
}

// ProtocolError wraps a decode or transport failure that moves the session
// to PhaseError (spec §4.9's "protocol decode failures are surfaced as
// Error").
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "session: protocol error: " + e.Reason }
