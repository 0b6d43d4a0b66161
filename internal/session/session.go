// Package session implements the per-peer connection state machine
// (spec §4.5, C5): handshake, choke/interest tracking, work selection
// from a shared piece queue, block requesting, piece assembly and
// verification, and progress reporting to a supervisor.
package session

import (
	"fmt"
	"net"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"

	"gtorrent/internal/event"
	"gtorrent/internal/piece"
	"gtorrent/internal/wire"
)

const (
	protocol = "tcp"

	// DialTimeout bounds the initial TCP connect.
	DialTimeout = 5 * time.Second
	// HandshakeTimeout bounds the handshake exchange once connected.
	HandshakeTimeout = 5 * time.Second
	// ReadTimeout is the per-frame read deadline in the Working state.
	ReadTimeout = 5 * time.Second

	// KeepAliveEveryIteration reproduces the source's per-iteration
	// KeepAlive send. It is far more aggressive than the standard
	// 2-minute cadence; kept as a named, flippable constant per the
	// spec's open question rather than a silent magic bool.
	KeepAliveEveryIteration = true
)

// Remote identifies a peer's network address.
type Remote struct {
	Host string
	Port int
}

func (r Remote) String() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// TorrentRef is the immutable torrent metadata a session needs,
// consumed read-only (spec §3/§6).
type TorrentRef struct {
	InfoHash    [20]byte
	Name        string
	PieceCount  int
	LocalPeerID [20]byte
	DownloadDir string
}

// Session owns one peer connection end to end. It is never aliased:
// one goroutine runs Run() for the lifetime of the session.
type Session struct {
	id      string
	remote  Remote
	torrent *TorrentRef

	conn  net.Conn
	codec *wire.Codec

	amChoked     bool
	amInterested bool
	remoteID     [20]byte
	remotePieces *wire.Bitfield

	queue      *piece.Queue
	completion *piece.Monitor
	sink       event.Sink

	dialTimeout          time.Duration
	readTimeout          time.Duration
	badHashDropThreshold int

	log zerolog.Logger
}

// New builds a session ready to Run against remote. am_choked starts
// true and am_interested starts false (spec §3). Dial/read timeouts
// default to DialTimeout/ReadTimeout; override with SetTimeouts.
func New(remote Remote, torrent *TorrentRef, queue *piece.Queue, completion *piece.Monitor, sink event.Sink, logger zerolog.Logger) *Session {
	id := ""
	if u, err := uuid.NewV4(); err == nil {
		id = u.String()
	}
	return &Session{
		id:           id,
		remote:       remote,
		torrent:      torrent,
		amChoked:     true,
		amInterested: false,
		remotePieces: wire.NewBitfield(torrent.PieceCount),
		queue:        queue,
		completion:   completion,
		sink:         sink,
		dialTimeout:  DialTimeout,
		readTimeout:  ReadTimeout,
		log:          logger.With().Str("session", id).Str("peer", remote.String()).Str("torrent", torrent.Name).Logger(),
	}
}

// SetTimeouts overrides the default dial and per-read timeouts. A
// zero duration leaves the corresponding default untouched.
func (s *Session) SetTimeouts(dial, read time.Duration) {
	if dial > 0 {
		s.dialTimeout = dial
	}
	if read > 0 {
		s.readTimeout = read
	}
}

// SetBadHashDropThreshold sets the failed-verify count at which a
// piece's requeue is logged at Warn rather than Debug. The count is
// kept on the piece itself, across every session that fails it. The
// piece is always reset and requeued regardless — this never drops
// data, only raises the alarm level. 0 (the default) never escalates.
func (s *Session) SetBadHashDropThreshold(n int) {
	s.badHashDropThreshold = n
}

// Run drives the full Connecting -> Handshaking -> Working ->
// Terminated lifecycle (spec §4.5) and returns once the session ends.
func (s *Session) Run() {
	conn, err := s.connect()
	if err != nil {
		s.log.Debug().Err(err).Msg("cannot connect to peer")
		return
	}
	s.conn = conn
	s.codec = wire.NewCodec(conn)
	defer conn.Close()

	if err := s.handshake(); err != nil {
		s.log.Debug().Err(err).Msg("handshake failed")
		return
	}

	if err := s.sink.Send(event.Event{
		Kind:        event.NewConnection,
		TorrentName: s.torrent.Name,
		Peer:        s.remote.String(),
		SessionID:   s.id,
	}); err != nil {
		s.log.Debug().Msg("NewConnection delivery failed, terminating silently")
		return
	}

	s.work()
}

func (s *Session) connect() (net.Conn, error) {
	conn, err := net.DialTimeout(protocol, s.remote.String(), s.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotConnectToPeer, err)
	}
	if err := conn.SetDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrCannotConnectToPeer, err)
	}
	return conn, nil
}

func (s *Session) handshake() error {
	local := wire.NewHandshake(s.torrent.InfoHash, s.torrent.LocalPeerID)
	if err := s.codec.WriteHandshake(local); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeError, err)
	}

	remote, err := s.codec.ReadHandshake()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeError, err)
	}
	if remote.InfoHash != s.torrent.InfoHash {
		return fmt.Errorf("%w: info-hash mismatch", ErrHandshakeError)
	}
	s.remoteID = remote.PeerID

	// Only the 5s connect+handshake deadline was installed; clear it
	// so the Working state's per-read deadlines (set fresh on every
	// ReadMessage) are the only timeouts in effect (spec §5: "no
	// global session deadline").
	_ = s.conn.SetDeadline(time.Time{})
	return nil
}
