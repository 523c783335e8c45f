package transport

import "fmt"

// Error wraps a wire decode failure surfaced while dispatching an inbound
// envelope (spec §4.6).
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s", e.Reason)
}
