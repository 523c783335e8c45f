package envelope

import "encoding/binary"

// PayloadKind distinguishes a text payload from a binary one (spec §4.2).
type PayloadKind uint8

const (
	PayloadKindText   PayloadKind = 0
	PayloadKindBinary PayloadKind = 1
)

const headerSize = 1 + 8 + 4 // payloadKind + sequence + length

// Envelope is one framed message: [payloadKind:u8][sequence:u64][length:u32][bytes...].
type Envelope struct {
	Kind     PayloadKind
	Sequence uint64
	Payload  []byte
}

// Encode serialises an Envelope to its wire representation.
func Encode(e Envelope) []byte {
	buf := make([]byte, headerSize+len(e.Payload))
	buf[0] = byte(e.Kind)
	binary.BigEndian.PutUint64(buf[1:9], e.Sequence)
	binary.BigEndian.PutUint32(buf[9:13], uint32(len(e.Payload)))
	copy(buf[13:], e.Payload)
	return buf
}

// Decode parses one Envelope from b. It fails with *Error on truncated
// input, an unknown payload kind, or a declared length exceeding what
// remains in b.
func Decode(b []byte) (Envelope, error) {
	if len(b) < headerSize {
		return Envelope{}, errTruncated("header")
	}
	kind := PayloadKind(b[0])
	if kind != PayloadKindText && kind != PayloadKindBinary {
		return Envelope{}, errUnknownKind(b[0])
	}
	seq := binary.BigEndian.Uint64(b[1:9])
	length := binary.BigEndian.Uint32(b[9:13])
	rest := b[13:]
	if int(length) > len(rest) {
		return Envelope{}, errLengthOverflow(int(length), len(rest))
	}
	payload := make([]byte, length)
	copy(payload, rest[:length])
	return Envelope{Kind: kind, Sequence: seq, Payload: payload}, nil
}
