// Package keyenc translates platform keyboard events into the byte string
// the host expects on its input frame, per spec §4.10.
package keyenc

// Key names a non-printable key a platform keyboard event may report.
type Key string

const (
	KeyEnter     Key = "Enter"
	KeyBackspace Key = "Backspace"
	KeyTab       Key = "Tab"
	KeyEscape    Key = "Escape"
	KeyArrowUp   Key = "ArrowUp"
	KeyArrowDown Key = "ArrowDown"
	KeyArrowLeft Key = "ArrowLeft"
	KeyArrowRight Key = "ArrowRight"
	KeyHome      Key = "Home"
	KeyEnd       Key = "End"
	KeyPageUp    Key = "PageUp"
	KeyPageDown  Key = "PageDown"
	KeyDelete    Key = "Delete"
	KeyInsert    Key = "Insert"
	KeyF1        Key = "F1"
	KeyF2        Key = "F2"
	KeyF3        Key = "F3"
	KeyF4        Key = "F4"
	KeyF5        Key = "F5"
	KeyF6        Key = "F6"
	KeyF7        Key = "F7"
	KeyF8        Key = "F8"
	KeyF9        Key = "F9"
	KeyF10       Key = "F10"
	KeyF11       Key = "F11"
	KeyF12       Key = "F12"
)

// Event describes one platform key event.
type Event struct {
	// Char is the printable rune the platform reports, or 0 for a named key.
	Char rune
	// Key names a non-printable key; ignored when Char is non-zero.
	Key Key
	Ctrl  bool
	Alt   bool
	Shift bool
}

var namedKeyBytes = map[Key][]byte{
	KeyEnter:     {0x0D},
	KeyBackspace: {0x7F},
	KeyTab:       {0x09},
	KeyEscape:    {0x1B},
	KeyArrowUp:    []byte("\x1b[A"),
	KeyArrowDown:  []byte("\x1b[B"),
	KeyArrowRight: []byte("\x1b[C"),
	KeyArrowLeft:  []byte("\x1b[D"),
	KeyHome:      []byte("\x1b[H"),
	KeyEnd:       []byte("\x1b[F"),
	KeyPageUp:    []byte("\x1b[5~"),
	KeyPageDown:  []byte("\x1b[6~"),
	KeyDelete:    []byte("\x1b[3~"),
	KeyInsert:    []byte("\x1b[2~"),
	KeyF1:  []byte("\x1bOP"),
	KeyF2:  []byte("\x1bOQ"),
	KeyF3:  []byte("\x1bOR"),
	KeyF4:  []byte("\x1bOS"),
	KeyF5:  []byte("\x1b[15~"),
	KeyF6:  []byte("\x1b[17~"),
	KeyF7:  []byte("\x1b[18~"),
	KeyF8:  []byte("\x1b[19~"),
	KeyF9:  []byte("\x1b[20~"),
	KeyF10: []byte("\x1b[21~"),
	KeyF11: []byte("\x1b[23~"),
	KeyF12: []byte("\x1b[24~"),
}

// Encode returns the byte payload for ev, or nil if ev carries no
// meaningful keystroke (spec §4.10's "unknown or purely modifier events").
func Encode(ev Event) []byte {
	var out []byte

	switch {
	case ev.Char != 0:
		if ev.Ctrl {
			if b, ok := controlByte(ev.Char); ok {
				out = []byte{b}
				break
			}
		}
		out = []byte(string(ev.Char))
	case ev.Key != "":
		b, ok := namedKeyBytes[ev.Key]
		if !ok {
			return nil
		}
		out = append([]byte(nil), b...)
	default:
		return nil
	}

	if ev.Alt {
		out = append([]byte{0x1B}, out...)
	}
	return out
}

// controlByte maps a letter to its control-modified byte (e.g. Ctrl-C ->
// 0x03): the letter's position in the alphabet, 1-indexed.
func controlByte(ch rune) (byte, bool) {
	lower := ch
	if lower >= 'A' && lower <= 'Z' {
		lower = lower - 'A' + 'a'
	}
	if lower < 'a' || lower > 'z' {
		return 0, false
	}
	return byte(lower-'a') + 1, true
}
