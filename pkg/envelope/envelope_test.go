package envelope

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := Envelope{Kind: PayloadKindText, Sequence: 7, Payload: []byte("hello")}
	decoded, err := Decode(Encode(e))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != e.Kind || decoded.Sequence != e.Sequence || string(decoded.Payload) != string(e.Payload) {
		t.Fatalf("round trip mismatch: want %+v, got %+v", e, decoded)
	}
}

func TestDecodeHandcrafted(t *testing.T) {
	// [0x01][sequence=1 as u64][length=2 as u32][0xDE 0xAD]
	raw := []byte{
		0x01,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x02,
		0xDE, 0xAD,
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != PayloadKindBinary {
		t.Errorf("expected binary kind, got %v", decoded.Kind)
	}
	if decoded.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", decoded.Sequence)
	}
	if len(decoded.Payload) != 2 || decoded.Payload[0] != 0xDE || decoded.Payload[1] != 0xAD {
		t.Errorf("unexpected payload: %v", decoded.Payload)
	}
}

func TestDecodeTruncated(t *testing.T) {
	if _, err := Decode([]byte{0x01, 0x00}); err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	raw := Encode(Envelope{Kind: PayloadKindText, Sequence: 0, Payload: nil})
	raw[0] = 0x02
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected error for unknown payload kind")
	}
}

func TestDecodeLengthOverflow(t *testing.T) {
	raw := []byte{
		0x00,
		0, 0, 0, 0, 0, 0, 0, 0,
		0x00, 0x00, 0x00, 0x05, // claims 5 bytes
		0x01, 0x02, // only 2 present
	}
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected error for length overflow")
	}
}
