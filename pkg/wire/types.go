// Package wire implements the binary frame codec described in spec §4.1 and
// §6.3: fixed-width big-endian fields, u32 length-prefixed arrays, and a
// single discriminator byte per frame/update type. Every exported frame and
// update type is a plain value; encode/decode live in codec.go.
package wire

import "unicode/utf8"

// Lane is the categorical priority for snapshot updates (spec §6.3, GLOSSARY).
type Lane uint8

const (
	LaneForeground Lane = 0
	LaneRecent     Lane = 1
	LaneHistory    Lane = 2
)

// SnapshotBudget caps how many updates a lane may carry in one snapshot frame.
type SnapshotBudget struct {
	Lane       Lane
	MaxUpdates uint32
}

// SyncConfig is the host-announced session configuration carried in hello
// (spec §6.3).
type SyncConfig struct {
	SnapshotBudgets      []SnapshotBudget
	DeltaBudget          uint32
	HeartbeatMs          uint32
	InitialSnapshotLines uint32
}

// MakeCell packs a Unicode code point and a style id into the 64-bit cell
// encoding mandated by spec §3: codePoint*2^32 + styleId.
func MakeCell(codePoint rune, styleID uint32) uint64 {
	return uint64(uint32(codePoint))<<32 | uint64(styleID)
}

// CellCodePoint extracts the code point packed by MakeCell.
func CellCodePoint(cell uint64) rune {
	return rune(cell >> 32)
}

// CellStyleID extracts the style id packed by MakeCell.
func CellStyleID(cell uint64) uint32 {
	return uint32(cell)
}

// validateCell rejects cells whose packed code point is not a valid Unicode
// scalar value, per spec §4.1's decode-failure contract.
func validateCell(cell uint64) error {
	cp := uint32(cell >> 32)
	if !utf8.ValidRune(rune(cp)) {
		return errInvalidCodePoint(cp)
	}
	return nil
}

// StyleAttrs is the bitfield of text attributes carried by a style entry
// (spec §3).
type StyleAttrs uint32

const (
	AttrBold StyleAttrs = 1 << iota
	AttrItalic
	AttrUnderline
	AttrStrike
	AttrInverse
	AttrBlink
	AttrDim
	AttrHidden
)

// ColorMode is the high byte of a packed fg/bg color value (spec §3).
type ColorMode uint8

const (
	ColorModeDefault ColorMode = 0
	ColorModeIndexed ColorMode = 1
	ColorModeTrueColor ColorMode = 2
)

// PackColor packs a color mode and 24-bit value into the fg/bg encoding used
// by style updates: high byte mode, low 24 bits color.
func PackColor(mode ColorMode, value uint32) uint32 {
	return uint32(mode)<<24 | (value & 0x00FFFFFF)
}

// UnpackColor reverses PackColor.
func UnpackColor(packed uint32) (ColorMode, uint32) {
	return ColorMode(packed >> 24), packed & 0x00FFFFFF
}
