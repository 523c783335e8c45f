package wire

import (
	"encoding/binary"
)

// writer accumulates a big-endian encoded frame. Field widths mirror spec §4.1:
// sequence numbers are u64, row/col indices are u32, byte/array lengths are u32.
type writer struct {
	buf []byte
}

func newWriter() *writer {
	return &writer{buf: make([]byte, 0, 64)}
}

func (w *writer) byte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *writer) u32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *writer) u64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *writer) bool8(v bool) {
	if v {
		w.byte(1)
	} else {
		w.byte(0)
	}
}

func (w *writer) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) bytes32(b []uint64) {
	w.u32(uint32(len(b)))
	for _, v := range b {
		w.u64(v)
	}
}

func (w *writer) bytesOut() []byte {
	return w.buf
}

// reader consumes a big-endian encoded frame, failing with a DecodeError on
// any truncation or length field that would overrun the remaining buffer.
type reader struct {
	buf []byte
	pos int
}

func newReader(b []byte) *reader {
	return &reader{buf: b}
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *reader) byte(field string) (byte, error) {
	if r.remaining() < 1 {
		return 0, errTruncated(field)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) u32(field string) (uint32, error) {
	if r.remaining() < 4 {
		return 0, errTruncated(field)
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) u64(field string) (uint64, error) {
	if r.remaining() < 8 {
		return 0, errTruncated(field)
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) bool8(field string) (bool, error) {
	b, err := r.byte(field)
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (r *reader) bytes(field string) ([]byte, error) {
	n, err := r.u32(field)
	if err != nil {
		return nil, err
	}
	if int(n) > r.remaining() {
		return nil, errLengthOverflow(field, int(n), r.remaining())
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

func (r *reader) u64Slice(field string) ([]uint64, error) {
	n, err := r.u32(field)
	if err != nil {
		return nil, err
	}
	if int(n)*8 > r.remaining() {
		return nil, errLengthOverflow(field, int(n)*8, r.remaining())
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]uint64, n)
	for i := range out {
		v, err := r.u64(field)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *reader) atEnd() bool {
	return r.remaining() == 0
}
