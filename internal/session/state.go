package session

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"gtorrent/internal/event"
	"gtorrent/internal/piece"
	"gtorrent/internal/wire"
)

// work runs the Working state (spec §4.5/§4.6): repeatedly pop a
// piece from the shared queue and drive it to completion or failure.
// When the queue is momentarily empty, the session checks whether the
// torrent is already complete or whether this peer has nothing left
// it can usefully serve before yielding and retrying.
func (s *Session) work() {
	for {
		p, ok := s.queue.PopFront()
		if !ok {
			if s.completion.IsComplete() || !s.hasWantedPiece() {
				s.dropConnection()
				return
			}
			runtime.Gosched()
			continue
		}

		err := s.downloadPiece(p)
		switch {
		case err == nil:
			if !s.persistAndReport(p) {
				p.Reset()
				s.queue.PushBack(p)
			}
		case errors.Is(err, ErrInvalidPiece):
			attempts := p.IncrementBadAttempts()
			if s.badHashDropThreshold > 0 && attempts >= s.badHashDropThreshold {
				s.log.Warn().Uint32("piece", p.Index).Int("attempts", attempts).Msg("piece repeatedly failed verification")
			} else {
				s.log.Debug().Uint32("piece", p.Index).Int("attempts", attempts).Msg("piece failed verification, requeueing")
			}
			p.Reset()
			s.queue.PushBack(p)
		case errors.Is(err, ErrCannotReadPeerMessage), errors.Is(err, ErrPeerChokedUs):
			p.Reset()
			s.queue.PushBack(p)
			s.dropConnection()
			return
		default:
			s.queue.PushBack(p)
			s.dropConnection()
			return
		}
	}
}

// hasWantedPiece reports whether the remote peer advertises at least
// one piece we still need.
func (s *Session) hasWantedPiece() bool {
	return s.remotePieces.Intersects(s.completion.WantedComplement())
}

// downloadPiece drives the per-piece sub-state-machine (spec §4.6):
// each iteration sends a KeepAlive, tries to become interested, sends
// as many pipelined Request frames as the unchoked state allows, then
// blocks for exactly one incoming frame. Once p is fully downloaded it
// runs Verify and returns nil or ErrInvalidPiece; a fatal condition
// returns its error earlier.
func (s *Session) downloadPiece(p *piece.Piece) error {
	for p.DownloadedOffset < p.TotalLength {
		s.keepAlive()

		if !s.amInterested {
			s.sendInterested()
		}

		if s.amInterested && !s.amChoked {
			s.requestBlocks(p)
		}

		if err := s.receiveAndHandle(p); err != nil {
			return err
		}
	}

	if p.Verify() {
		return nil
	}
	return ErrInvalidPiece
}

func (s *Session) keepAlive() {
	if !KeepAliveEveryIteration {
		return
	}
	_ = s.codec.WriteMessage(&wire.Message{ID: wire.KeepAlive})
}

// sendInterested sends Interested at most once per session: am_interested
// only flips to true on a successful send, otherwise the next
// iteration tries again.
func (s *Session) sendInterested() {
	if err := s.codec.WriteMessage(&wire.Message{ID: wire.Interested}); err != nil {
		s.log.Debug().Err(err).Msg("interested send failed, retrying next iteration")
		return
	}
	s.amInterested = true
	s.emitStatus(s.chokeWord() + " | interested")
}

// requestBlocks pipelines Request frames for p until its full length
// has been requested. A send failure stops pipelining for this
// iteration rather than spinning forever against a dead socket; the
// next receiveAndHandle call will surface the dead connection as
// ErrCannotReadPeerMessage.
func (s *Session) requestBlocks(p *piece.Piece) {
	for p.RequestedOffset < p.TotalLength {
		begin := p.RequestedOffset
		length := p.NextBlockLength()
		msg := &wire.Message{ID: wire.Request, Payload: wire.FormatRequest(p.Index, begin, length)}
		if err := s.codec.WriteMessage(msg); err != nil {
			s.log.Debug().Err(err).Msg("request send failed")
			return
		}
		p.MarkRequested(length)
	}
}

// receiveAndHandle reads exactly one frame under the per-read
// deadline and applies it to session/piece state (spec §4.1/§4.6).
func (s *Session) receiveAndHandle(p *piece.Piece) error {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrCannotReadPeerMessage, err)
	}

	msg, err := s.codec.ReadMessage()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCannotReadPeerMessage, err)
	}

	switch msg.ID {
	case wire.Choke:
		s.amChoked = true
		return ErrPeerChokedUs
	case wire.Unchoke:
		s.amChoked = false
		s.emitStatus("unchoked / " + s.interestWord())
	case wire.BitfieldMsg:
		s.remotePieces.AddAll(msg.Payload)
	case wire.Have:
		if idx, err := wire.ParseHave(msg.Payload); err == nil {
			s.remotePieces.Set(int(idx))
		}
	case wire.Piece:
		if idx, begin, block, err := wire.ParsePiece(msg.Payload); err == nil {
			p.AppendBlock(idx, begin, block)
		}
	case wire.Request, wire.Cancel, wire.Interested, wire.NotInterested, wire.KeepAlive:
		// leech-only session: nothing to serve, nothing to react to.
	}
	return nil
}

func (s *Session) chokeWord() string {
	if s.amChoked {
		return "choked"
	}
	return "unchoked"
}

func (s *Session) interestWord() string {
	if s.amInterested {
		return "interested"
	}
	return "not interested"
}

func (s *Session) emitStatus(status string) {
	_ = s.sink.Send(event.Event{
		Kind:        event.OurStatus,
		TorrentName: s.torrent.Name,
		Peer:        s.remote.String(),
		SessionID:   s.id,
		Status:      status,
	})
}

// persistAndReport writes p to disk and reports it upstream for the
// supervisor to mark done (spec §5: the completed-pieces bitfield is
// supervisor-written only). It returns false on a persistence failure,
// signaling the caller to requeue the piece.
func (s *Session) persistAndReport(p *piece.Piece) bool {
	if err := persistPiece(s.torrent.DownloadDir, s.torrent.Name, p.Index, p.Blocks); err != nil {
		s.log.Warn().Err(err).Uint32("piece", p.Index).Msg("failed to persist piece")
		return false
	}
	_ = s.sink.Send(event.Event{
		Kind:        event.NewDownloadedPiece,
		TorrentName: s.torrent.Name,
		Peer:        s.remote.String(),
		SessionID:   s.id,
		Piece:       p,
	})
	return true
}

// dropConnection emits the terminal ConnectionDropped event. Send
// failures here are ignored: the session is ending regardless.
func (s *Session) dropConnection() {
	_ = s.sink.Send(event.Event{
		Kind:        event.ConnectionDropped,
		TorrentName: s.torrent.Name,
		Peer:        s.remote.String(),
		SessionID:   s.id,
	})
}
