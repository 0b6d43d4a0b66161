package wire

import (
	"bufio"
	"io"
)

// Codec is the per-connection wire encoder/decoder (spec §4.1, C1). It
// owns a buffered writer so every send can be followed by a flush;
// flush failures are ignored, matching the spec's "non-fatal" rule.
// Bytes reach the connection during Flush, so a failed socket write
// is dropped there; the bufio.Writer keeps that error and returns it
// from the next send on this Codec, and the next read on a dead
// connection fails as well.
type Codec struct {
	r io.Reader
	w *bufio.Writer
}

// NewCodec wraps rw for message framing.
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{r: rw, w: bufio.NewWriter(rw)}
}

// ReadHandshake reads one handshake frame.
func (c *Codec) ReadHandshake() (*Handshake, error) {
	return ReadHandshake(c.r)
}

// WriteHandshake writes and flushes one handshake frame.
func (c *Codec) WriteHandshake(h *Handshake) error {
	if err := WriteHandshake(c.w, h); err != nil {
		return err
	}
	_ = c.w.Flush()
	return nil
}

// ReadMessage reads one length-prefixed frame.
func (c *Codec) ReadMessage() (*Message, error) {
	return ReadMessage(c.r)
}

// WriteMessage writes and flushes one length-prefixed frame.
func (c *Codec) WriteMessage(m *Message) error {
	if err := WriteMessage(c.w, m); err != nil {
		return err
	}
	_ = c.w.Flush()
	return nil
}
