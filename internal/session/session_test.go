package session

import (
	"crypto/sha1"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gtorrent/internal/event"
	"gtorrent/internal/piece"
	"gtorrent/internal/wire"
)

func listenAndDial(t *testing.T) (net.Listener, Remote) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	return ln, Remote{Host: "127.0.0.1", Port: addr.Port}
}

func acceptHandshake(t *testing.T, ln net.Listener, infoHash [20]byte) (*wire.Codec, net.Conn) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	codec := wire.NewCodec(conn)
	if _, err := codec.ReadHandshake(); err != nil {
		t.Fatalf("server read handshake: %v", err)
	}
	if err := codec.WriteHandshake(wire.NewHandshake(infoHash, [20]byte{9, 9, 9})); err != nil {
		t.Fatalf("server write handshake: %v", err)
	}
	return codec, conn
}

func drainEvents(sink *event.ChannelSink, n int, timeout time.Duration) []event.Event {
	var got []event.Event
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case e := <-sink.Events():
			got = append(got, e)
		case <-deadline:
			return got
		}
	}
	return got
}

func testTorrent(dir string, infoHash [20]byte, pieceLen int) *TorrentRef {
	return &TorrentRef{
		InfoHash:    infoHash,
		Name:        "t",
		PieceCount:  1,
		LocalPeerID: [20]byte{1, 2, 3},
		DownloadDir: dir,
	}
}

// S1: happy path end to end — handshake, bitfield, unchoke, full piece
// download, persisted to disk, events in order.
func TestSessionHappyPath(t *testing.T) {
	infoHash := [20]byte{1}
	data := []byte("hello world, this is one full piece")
	digest := sha1.Sum(data)

	ln, remote := listenAndDial(t)
	defer ln.Close()

	dir := t.TempDir()
	torrentRef := testTorrent(dir, infoHash, len(data))
	q := piece.NewQueue([]*piece.Piece{piece.New(0, uint32(len(data)), digest)})
	mon := piece.NewMonitor(1)
	sink := event.NewChannelSink(16)

	done := make(chan struct{})
	go func() {
		defer close(done)
		codec, conn := acceptHandshake(t, ln, infoHash)
		defer conn.Close()

		bf := wire.NewBitfield(1)
		bf.Set(0)
		codec.WriteMessage(&wire.Message{ID: wire.BitfieldMsg, Payload: bf.Bytes()})

		for {
			msg, err := codec.ReadMessage()
			if err != nil {
				return
			}
			switch msg.ID {
			case wire.Interested:
				codec.WriteMessage(&wire.Message{ID: wire.Unchoke})
			case wire.Request:
				idx, begin, length, _ := wire.ParseRequest(msg.Payload)
				block := data[begin : begin+length]
				codec.WriteMessage(&wire.Message{ID: wire.Piece, Payload: wire.FormatPiece(idx, begin, block)})
			}
		}
	}()

	s := New(remote, torrentRef, q, mon, sink, zerolog.Nop())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		s.Run()
	}()

	// Stand in for the supervisor: the session only terminates once the
	// piece it delivered is marked done in the completion monitor.
	var got []event.Event
	deadline := time.After(2 * time.Second)
	for len(got) == 0 || got[len(got)-1].Kind != event.ConnectionDropped {
		select {
		case e := <-sink.Events():
			got = append(got, e)
			if e.Kind == event.NewDownloadedPiece {
				mon.MarkPieceDone(e.Piece.Index)
			}
		case <-deadline:
			t.Fatalf("session did not terminate, events so far: %+v", got)
		}
	}
	<-runDone
	<-done

	if len(got) < 1 || got[0].Kind != event.NewConnection {
		t.Fatalf("expected NewConnection first, got %+v", got)
	}
	var sawDownloaded bool
	for _, e := range got {
		if e.Kind == event.NewDownloadedPiece {
			sawDownloaded = true
		}
	}
	if !sawDownloaded {
		t.Fatalf("expected NewDownloadedPiece among %+v", got)
	}

	out, err := os.ReadFile(filepath.Join(dir, "t_piece_0"))
	if err != nil {
		t.Fatalf("read persisted piece: %v", err)
	}
	if string(out) != string(data) {
		t.Fatalf("persisted data mismatch: got %q want %q", out, data)
	}
}

// S2: info-hash mismatch during handshake terminates with no events.
func TestSessionInfoHashMismatch(t *testing.T) {
	infoHash := [20]byte{1}
	other := [20]byte{2}

	ln, remote := listenAndDial(t)
	defer ln.Close()

	dir := t.TempDir()
	torrentRef := testTorrent(dir, infoHash, 16)
	q := piece.NewQueue([]*piece.Piece{piece.New(0, 16, [20]byte{})})
	mon := piece.NewMonitor(1)
	sink := event.NewChannelSink(4)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		codec := wire.NewCodec(conn)
		codec.ReadHandshake()
		codec.WriteHandshake(wire.NewHandshake(other, [20]byte{9}))
	}()

	s := New(remote, torrentRef, q, mon, sink, zerolog.Nop())
	s.Run()

	select {
	case e := <-sink.Events():
		t.Fatalf("expected no events, got %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

// S3: a Choke mid-piece requeues the piece and drops the connection.
func TestSessionMidPieceChoke(t *testing.T) {
	infoHash := [20]byte{1}
	data := make([]byte, piece.BlockSize+10)
	digest := sha1.Sum(data)

	ln, remote := listenAndDial(t)
	defer ln.Close()

	dir := t.TempDir()
	torrentRef := testTorrent(dir, infoHash, len(data))
	q := piece.NewQueue([]*piece.Piece{piece.New(0, uint32(len(data)), digest)})
	mon := piece.NewMonitor(1)
	sink := event.NewChannelSink(16)

	go func() {
		codec, conn := acceptHandshake(t, ln, infoHash)
		defer conn.Close()

		bf := wire.NewBitfield(1)
		bf.Set(0)
		codec.WriteMessage(&wire.Message{ID: wire.BitfieldMsg, Payload: bf.Bytes()})

		requests := 0
		for {
			msg, err := codec.ReadMessage()
			if err != nil {
				return
			}
			switch msg.ID {
			case wire.Interested:
				codec.WriteMessage(&wire.Message{ID: wire.Unchoke})
			case wire.Request:
				requests++
				if requests == 1 {
					idx, begin, length, _ := wire.ParseRequest(msg.Payload)
					block := data[begin : begin+length]
					codec.WriteMessage(&wire.Message{ID: wire.Piece, Payload: wire.FormatPiece(idx, begin, block)})
					continue
				}
				codec.WriteMessage(&wire.Message{ID: wire.Choke})
				return
			}
		}
	}()

	s := New(remote, torrentRef, q, mon, sink, zerolog.Nop())
	s.Run()

	got := drainEvents(sink, 4, 2*time.Second)
	var sawDrop bool
	for _, e := range got {
		if e.Kind == event.ConnectionDropped {
			sawDrop = true
		}
	}
	if !sawDrop {
		t.Fatalf("expected ConnectionDropped among %+v", got)
	}
	if q.Len() != 1 {
		t.Fatalf("expected piece requeued, queue len = %d", q.Len())
	}
}

// S6: the remote advertises nothing we want, so the session drops
// immediately with no Request ever sent.
func TestSessionPeerHasNothingWeWant(t *testing.T) {
	infoHash := [20]byte{1}

	ln, remote := listenAndDial(t)
	defer ln.Close()

	dir := t.TempDir()
	torrentRef := testTorrent(dir, infoHash, 16)
	q := piece.NewQueue(nil)
	mon := piece.NewMonitor(1)
	mon.MarkPieceDone(0)

	sink := event.NewChannelSink(4)

	requestSeen := make(chan struct{}, 1)
	go func() {
		codec, conn := acceptHandshake(t, ln, infoHash)
		defer conn.Close()
		for {
			msg, err := codec.ReadMessage()
			if err != nil {
				return
			}
			if msg.ID == wire.Request {
				requestSeen <- struct{}{}
			}
		}
	}()

	s := New(remote, torrentRef, q, mon, sink, zerolog.Nop())
	s.Run()

	got := drainEvents(sink, 2, time.Second)
	if len(got) != 2 || got[0].Kind != event.NewConnection || got[1].Kind != event.ConnectionDropped {
		t.Fatalf("expected [NewConnection ConnectionDropped], got %+v", got)
	}
	select {
	case <-requestSeen:
		t.Fatalf("expected no Request to be sent")
	default:
	}
}
