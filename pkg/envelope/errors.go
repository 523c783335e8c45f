package envelope

import "fmt"

// Error reports a malformed envelope: truncated input or an unknown payload
// kind (spec §4.2).
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("envelope: %s", e.Reason)
}

func errTruncated(field string) *Error {
	return &Error{Reason: fmt.Sprintf("truncated input reading %s", field)}
}

func errUnknownKind(kind byte) *Error {
	return &Error{Reason: fmt.Sprintf("unknown payload kind 0x%02x", kind)}
}

func errLengthOverflow(want, have int) *Error {
	return &Error{Reason: fmt.Sprintf("declared length (%d) exceeds remaining buffer (%d)", want, have)}
}
