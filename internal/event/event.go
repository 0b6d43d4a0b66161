// Package event implements the supervisor interface (spec §4.6): the
// one event stream multiplexed across all peer sessions.
package event

import (
	"errors"

	"gtorrent/internal/piece"
)

// Kind is the tag of one supervisor event variant.
type Kind int

const (
	NewConnection Kind = iota
	OurStatus
	NewDownloadedPiece
	ConnectionDropped
)

func (k Kind) String() string {
	switch k {
	case NewConnection:
		return "NewConnection"
	case OurStatus:
		return "OurStatus"
	case NewDownloadedPiece:
		return "NewDownloadedPiece"
	case ConnectionDropped:
		return "ConnectionDropped"
	default:
		return "Unknown"
	}
}

// Event is one supervisor-facing notification emitted by a session.
type Event struct {
	Kind        Kind
	TorrentName string
	Peer        string
	SessionID   string
	Status      string      // set for OurStatus
	Piece       *piece.Piece // set for NewDownloadedPiece
}

// ErrSinkClosed is returned by Send once the sink has been closed.
var ErrSinkClosed = errors.New("event: sink closed")

// Sink is the write side of the supervisor event stream. Many
// producers (sessions), one consumer; each Send is atomic with
// respect to other sends (spec §5).
type Sink interface {
	Send(Event) error
}

// ChannelSink is the default Sink: a buffered channel plus a closed
// signal so Send never blocks forever against a consumer that has
// gone away.
type ChannelSink struct {
	events chan Event
	closed chan struct{}
}

// NewChannelSink builds a sink with the given channel buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{
		events: make(chan Event, buffer),
		closed: make(chan struct{}),
	}
}

// Send delivers e to the consumer, or returns ErrSinkClosed if Close
// has already been called.
func (s *ChannelSink) Send(e Event) error {
	select {
	case s.events <- e:
		return nil
	case <-s.closed:
		return ErrSinkClosed
	}
}

// Events returns the receive side for the supervisor to range over.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// Close signals that no further events will be consumed. Idempotent
// calls are not supported — call exactly once, from the supervisor.
func (s *ChannelSink) Close() {
	close(s.closed)
}
