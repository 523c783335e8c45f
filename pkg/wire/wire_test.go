package wire

import (
	"reflect"
	"testing"
)

func TestHostFrameRoundTrip(t *testing.T) {
	cases := []HostFrame{
		Heartbeat{Seq: 7, TimestampMs: 123456},
		Hello{
			Subscription: 1,
			MaxSeq:       99,
			Config: SyncConfig{
				SnapshotBudgets:      []SnapshotBudget{{Lane: LaneForeground, MaxUpdates: 500}, {Lane: LaneHistory, MaxUpdates: 50}},
				DeltaBudget:          200,
				HeartbeatMs:          5000,
				InitialSnapshotLines: 2000,
			},
		},
		Grid{ViewportRows: 24, Cols: 80, HistoryRows: 10000, BaseRow: 90},
		Snapshot{
			Subscription: 1,
			Lane:         LaneRecent,
			Watermark:    42,
			HasMore:      true,
			Updates: []Update{
				CellUpdate{Row: 1, Col: 2, Seq: 3, Cell: MakeCell('x', 0)},
				RectUpdate{RowLo: 0, RowHi: 2, ColLo: 0, ColHi: 2, Seq: 4, Cell: MakeCell(' ', 1)},
				RowUpdate{Row: 5, Seq: 10, Cells: []uint64{MakeCell('h', 0), MakeCell('i', 0)}},
				RowSegmentUpdate{Row: 6, StartCol: 3, Seq: 11, Cells: []uint64{MakeCell('!', 0)}},
				TrimUpdate{Start: 0, Count: 10, Seq: 12},
				StyleUpdate{ID: 1, Seq: 13, Fg: PackColor(ColorModeTrueColor, 0xff00ff), Bg: PackColor(ColorModeDefault, 0), Attrs: uint32(AttrBold | AttrUnderline)},
			},
		},
		SnapshotComplete{Subscription: 1, Lane: LaneHistory},
		Delta{Subscription: 1, Watermark: 50, HasMore: false, Updates: []Update{CellUpdate{Row: 0, Col: 0, Seq: 1, Cell: MakeCell('a', 0)}}},
		HistoryBackfill{Subscription: 1, RequestID: 7, StartRow: 10, Count: 20, Updates: nil, More: true},
		InputAck{Seq: 5},
		Shutdown{},
	}

	for _, f := range cases {
		encoded, err := EncodeHostFrame(f)
		if err != nil {
			t.Fatalf("encode %T: %v", f, err)
		}
		decoded, err := DecodeHostFrame(encoded)
		if err != nil {
			t.Fatalf("decode %T: %v", f, err)
		}
		if !reflect.DeepEqual(f, decoded) {
			t.Errorf("round trip mismatch for %T:\n want %#v\n got  %#v", f, f, decoded)
		}
	}
}

func TestClientFrameRoundTrip(t *testing.T) {
	cases := []ClientFrame{
		Input{Seq: 1, Data: []byte("hello")},
		Input{Seq: 2, Data: nil},
		Resize{Cols: 80, Rows: 24},
		RequestBackfill{Subscription: 1, RequestID: 2, StartRow: 100, Count: 50},
	}

	for _, f := range cases {
		encoded, err := EncodeClientFrame(f)
		if err != nil {
			t.Fatalf("encode %T: %v", f, err)
		}
		decoded, err := DecodeClientFrame(encoded)
		if err != nil {
			t.Fatalf("decode %T: %v", f, err)
		}
		if !reflect.DeepEqual(f, decoded) {
			t.Errorf("round trip mismatch for %T:\n want %#v\n got  %#v", f, f, decoded)
		}
	}
}

func TestDecodeHostFrameTruncated(t *testing.T) {
	_, err := DecodeHostFrame([]byte{byte(HostFrameHeartbeat), 0x00})
	if err == nil {
		t.Fatal("expected error decoding truncated heartbeat")
	}
	var decErr *DecodeError
	if !asDecodeError(err, &decErr) {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
}

func TestDecodeHostFrameUnknownTag(t *testing.T) {
	_, err := DecodeHostFrame([]byte{0xAA})
	if err == nil {
		t.Fatal("expected error for unknown discriminator")
	}
}

func TestDecodeHostFrameLengthOverflow(t *testing.T) {
	// Snapshot with updates.count claiming more updates than bytes remain.
	w := newWriter()
	w.byte(byte(HostFrameSnapshot))
	w.u64(1)
	w.byte(byte(LaneForeground))
	w.u64(0)
	w.bool8(false)
	w.u32(1000) // claims 1000 updates, but no payload follows
	_, err := DecodeHostFrame(w.bytesOut())
	if err == nil {
		t.Fatal("expected length overflow error")
	}
}

func TestDecodeCellInvalidCodePoint(t *testing.T) {
	w := newWriter()
	w.byte(byte(HostFrameSnapshot))
	w.u64(1)
	w.byte(byte(LaneForeground))
	w.u64(0)
	w.bool8(false)
	w.u32(1) // one update
	w.byte(byte(UpdateTagCell))
	w.u32(0)
	w.u32(0)
	w.u64(1)
	w.u64(MakeCell(0x110000, 0)) // past max valid rune
	_, err := DecodeHostFrame(w.bytesOut())
	if err == nil {
		t.Fatal("expected invalid code point error")
	}
}

func asDecodeError(err error, target **DecodeError) bool {
	de, ok := err.(*DecodeError)
	if !ok {
		return false
	}
	*target = de
	return true
}
