package wire

import (
	"fmt"
	"io"
)

// ProtocolIdentifier is the canonical pstr sent in every handshake.
const ProtocolIdentifier = "BitTorrent protocol"

// Handshake is the fixed 49+pstrlen frame exchanged before any other
// message (spec §4.1, §6): pstrlen(1) || pstr(pstrlen) || reserved(8)
// || info_hash(20) || peer_id(20).
type Handshake struct {
	Pstr     string
	Reserved [8]byte
	InfoHash [20]byte
	PeerID   [20]byte
}

// NewHandshake builds the canonical outbound handshake for infoHash/peerID.
func NewHandshake(infoHash, peerID [20]byte) *Handshake {
	return &Handshake{
		Pstr:     ProtocolIdentifier,
		InfoHash: infoHash,
		PeerID:   peerID,
	}
}

// Serialize encodes the handshake to its wire form.
func (h *Handshake) Serialize() []byte {
	buf := make([]byte, 49+len(h.Pstr))
	buf[0] = byte(len(h.Pstr))
	copy(buf[1:], h.Pstr)
	copy(buf[1+len(h.Pstr):], h.Reserved[:])
	copy(buf[1+len(h.Pstr)+8:], h.InfoHash[:])
	copy(buf[1+len(h.Pstr)+8+20:], h.PeerID[:])
	return buf
}

// ReadHandshake reads exactly one handshake frame from r. Per spec §6,
// pstr text and reserved bits are never validated here — only the
// caller, comparing InfoHash, decides validity.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	lenBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReading, err)
	}
	pstrlen := int(lenBuf[0])

	rest := make([]byte, 48+pstrlen)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReading, err)
	}

	h := &Handshake{Pstr: string(rest[:pstrlen])}
	copy(h.Reserved[:], rest[pstrlen:pstrlen+8])
	copy(h.InfoHash[:], rest[pstrlen+8:pstrlen+8+20])
	copy(h.PeerID[:], rest[pstrlen+8+20:])
	return h, nil
}

// WriteHandshake writes h to w in one call.
func WriteHandshake(w io.Writer, h *Handshake) error {
	data := h.Serialize()
	n, err := w.Write(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSending, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: short handshake write, wrote %d of %d bytes", ErrSending, n, len(data))
	}
	return nil
}
