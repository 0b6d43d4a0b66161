package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageID identifies a length-prefixed frame (spec §4.1). KeepAlive
// carries no id byte on the wire, so it is modeled as -1 to keep the
// type a closed, switchable enum rather than a separate bool.
type MessageID int8

const (
	KeepAlive MessageID = iota - 1
	Choke
	Unchoke
	Interested
	NotInterested
	Have
	BitfieldMsg
	Request
	Piece
	Cancel
)

func (id MessageID) String() string {
	names := []string{
		"KeepAlive",
		"Choke",
		"Unchoke",
		"Interested",
		"NotInterested",
		"Have",
		"Bitfield",
		"Request",
		"Piece",
		"Cancel",
	}
	if int(id)+1 < 0 || int(id)+1 >= len(names) {
		return fmt.Sprintf("Unknown(%d)", id)
	}
	return names[id+1]
}

// Message is one decoded, length-prefixed frame.
type Message struct {
	ID      MessageID
	Payload []byte
}

// FormatRequest builds the 12-byte payload shared by Request and Cancel.
func FormatRequest(index, begin, length uint32) []byte {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], index)
	binary.BigEndian.PutUint32(payload[4:8], begin)
	binary.BigEndian.PutUint32(payload[8:12], length)
	return payload
}

// FormatHave builds the 4-byte payload for a Have message.
func FormatHave(index uint32) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, index)
	return payload
}

// FormatPiece builds the payload for a Piece message: index, begin,
// then the raw block bytes.
func FormatPiece(index, begin uint32, block []byte) []byte {
	payload := make([]byte, 8+len(block))
	binary.BigEndian.PutUint32(payload[0:4], index)
	binary.BigEndian.PutUint32(payload[4:8], begin)
	copy(payload[8:], block)
	return payload
}

// ParsePiece extracts index, begin and the block from a Piece payload.
func ParsePiece(payload []byte) (index, begin uint32, block []byte, err error) {
	if len(payload) < 8 {
		return 0, 0, nil, fmt.Errorf("%w: piece payload too short: %d bytes", ErrReading, len(payload))
	}
	index = binary.BigEndian.Uint32(payload[0:4])
	begin = binary.BigEndian.Uint32(payload[4:8])
	block = payload[8:]
	return index, begin, block, nil
}

// ParseHave extracts the piece index from a Have payload.
func ParseHave(payload []byte) (uint32, error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("%w: have payload invalid length: %d", ErrReading, len(payload))
	}
	return binary.BigEndian.Uint32(payload), nil
}

// ParseRequest extracts index, begin, length from a Request/Cancel payload.
func ParseRequest(payload []byte) (index, begin, length uint32, err error) {
	if len(payload) != 12 {
		return 0, 0, 0, fmt.Errorf("%w: request payload invalid length: %d", ErrReading, len(payload))
	}
	index = binary.BigEndian.Uint32(payload[0:4])
	begin = binary.BigEndian.Uint32(payload[4:8])
	length = binary.BigEndian.Uint32(payload[8:12])
	return index, begin, length, nil
}

// Serialize encodes m to its wire form: <length prefix><message ID><payload>.
// A Piece message with an empty block is a creation error (spec §4.1).
func (m *Message) Serialize() ([]byte, error) {
	if m.ID == KeepAlive {
		return []byte{0, 0, 0, 0}, nil
	}
	if m.ID == Piece && len(m.Payload) <= 8 {
		return nil, fmt.Errorf("%w: piece message requires a non-empty block", ErrCreation)
	}

	length := uint32(1 + len(m.Payload))
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf, nil
}

// ReadMessage reads one length-prefixed frame from r.
func ReadMessage(r io.Reader) (*Message, error) {
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReading, err)
	}
	length := binary.BigEndian.Uint32(lengthBuf)
	if length == 0 {
		return &Message{ID: KeepAlive}, nil
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReading, err)
	}

	return &Message{ID: MessageID(int8(body[0])), Payload: body[1:]}, nil
}

// WriteMessage serializes and writes m to w. Per spec §4.1, callers
// that wrap w in a buffered writer flush after every send, and a
// flush failure is non-fatal/ignored; WriteMessage itself only ever
// reports the underlying Write failing.
func WriteMessage(w io.Writer, m *Message) error {
	data, err := m.Serialize()
	if err != nil {
		return err
	}
	n, err := w.Write(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSending, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: short write, wrote %d of %d bytes", ErrSending, n, len(data))
	}
	return nil
}
