package wire

import (
	"bytes"
	"testing"
)

func TestHandshakeRoundTrip(t *testing.T) {
	var infoHash, peerID [20]byte
	copy(infoHash[:], "aaaaaaaaaaaaaaaaaaaa")
	copy(peerID[:], "bbbbbbbbbbbbbbbbbbbb")

	h := NewHandshake(infoHash, peerID)
	data := h.Serialize()
	if len(data) != 49+len(ProtocolIdentifier) {
		t.Fatalf("expected %d bytes, got %d", 49+len(ProtocolIdentifier), len(data))
	}

	got, err := ReadHandshake(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadHandshake: %v", err)
	}
	if got.InfoHash != infoHash || got.PeerID != peerID || got.Pstr != ProtocolIdentifier {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestReadHandshakeShortRead(t *testing.T) {
	_, err := ReadHandshake(bytes.NewReader([]byte{19, 'B', 'i', 't'}))
	if err == nil {
		t.Fatal("expected error on short handshake read")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	cases := []*Message{
		{ID: Choke},
		{ID: Unchoke},
		{ID: Interested},
		{ID: NotInterested},
		{ID: Have, Payload: FormatHave(42)},
		{ID: BitfieldMsg, Payload: []byte{0xff, 0x00}},
		{ID: Request, Payload: FormatRequest(1, 2, 3)},
		{ID: Piece, Payload: append(FormatRequest(1, 2, 0)[:8], []byte("hello")...)},
		{ID: Cancel, Payload: FormatRequest(1, 2, 3)},
	}

	for _, m := range cases {
		data, err := m.Serialize()
		if err != nil {
			t.Fatalf("Serialize(%s): %v", m.ID, err)
		}
		expectedLen := 4
		if m.ID != KeepAlive {
			expectedLen += 1 + len(m.Payload)
		}
		if len(data) != expectedLen {
			t.Fatalf("%s: expected %d bytes, got %d", m.ID, expectedLen, len(data))
		}

		got, err := ReadMessage(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("ReadMessage(%s): %v", m.ID, err)
		}
		if got.ID != m.ID || !bytes.Equal(got.Payload, m.Payload) {
			t.Fatalf("%s: round trip mismatch, got %+v want %+v", m.ID, got, m)
		}
	}
}

func TestKeepAliveRoundTrip(t *testing.T) {
	m := &Message{ID: KeepAlive}
	data, err := m.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !bytes.Equal(data, []byte{0, 0, 0, 0}) {
		t.Fatalf("expected four zero bytes, got %x", data)
	}
	got, err := ReadMessage(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.ID != KeepAlive {
		t.Fatalf("expected KeepAlive, got %s", got.ID)
	}
}

func TestPieceMessageRejectsEmptyBlock(t *testing.T) {
	m := &Message{ID: Piece, Payload: FormatRequest(1, 2, 0)[:8]}
	if _, err := m.Serialize(); err == nil {
		t.Fatal("expected CreationError for empty-block piece message")
	}
}

func TestBitfieldEndianness(t *testing.T) {
	bf := NewBitfield(17)
	bf.Set(0)
	bf.Set(9)

	raw := bf.Bytes()
	if raw[0] != 0x80 {
		t.Fatalf("byte 0: expected 0x80, got %#x", raw[0])
	}
	// bit 9 -> byte 1, position 7-(9%8)=7-1=6 -> 0x40
	if raw[1] != 0x40 {
		t.Fatalf("byte 1: expected 0x40, got %#x", raw[1])
	}
	if raw[2] != 0 {
		t.Fatalf("byte 2: expected 0, got %#x", raw[2])
	}
}

func TestBitfieldAddAllRejectsWrongLength(t *testing.T) {
	bf := NewBitfield(16) // 2 bytes
	bf.Set(0)
	bf.AddAll([]byte{0x00}) // wrong length, must be discarded
	if !bf.Has(0) {
		t.Fatal("AddAll with wrong length must not modify the bitfield")
	}
}

func TestBitfieldComplementAndIntersects(t *testing.T) {
	have := NewBitfield(8)
	have.Set(0)
	have.Set(1)

	want := have.Complement()
	for i := 2; i < 8; i++ {
		if !want.Has(i) {
			t.Fatalf("expected complement bit %d set", i)
		}
	}
	if want.Has(0) || want.Has(1) {
		t.Fatal("complement must not include bits that were set")
	}

	remote := NewBitfield(8)
	remote.Set(0)
	if !have.Intersects(remote) {
		t.Fatal("expected intersection on bit 0")
	}
	if want.Intersects(remote) {
		t.Fatal("complement of have should not intersect remote which only has bit 0")
	}
}
