package session

import "errors"

// Session-level error kinds (spec §7). Wire-codec errors never reach
// the supervisor directly; they are lifted into one of these here.
var (
	// ErrCannotConnectToPeer: TCP connect or deadline setup failed.
	// Terminal for this session; no event is emitted.
	ErrCannotConnectToPeer = errors.New("session: cannot connect to peer")

	// ErrHandshakeError: I/O failure or info-hash mismatch during
	// handshake. Terminal; no NewConnection event.
	ErrHandshakeError = errors.New("session: handshake error")

	// ErrCannotReadPeerMessage: any post-handshake read failure,
	// including timeout. The in-flight piece is returned to the queue.
	ErrCannotReadPeerMessage = errors.New("session: cannot read peer message")

	// ErrPeerChokedUs: a Choke frame observed mid-piece. Same recovery
	// as a read failure.
	ErrPeerChokedUs = errors.New("session: peer choked us")

	// ErrInvalidPiece: assembled piece failed hash verification.
	// Non-terminal — the piece is reset and requeued.
	ErrInvalidPiece = errors.New("session: invalid piece")

	// ErrProtocolError: a non-I/O framing violation on send. Logged,
	// non-fatal to the session.
	ErrProtocolError = errors.New("session: protocol error")
)
