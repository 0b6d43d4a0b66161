package piece

import (
	"crypto/sha1"
	"testing"
)

func TestAssemblerAcceptsInOrderBlocks(t *testing.T) {
	data := []byte("0123456789abcdef")
	digest := sha1.Sum(data)
	p := New(0, uint32(len(data)), digest)

	if !p.AppendBlock(0, 0, data[:8]) {
		t.Fatal("expected first block to be accepted")
	}
	if p.IsComplete() {
		t.Fatal("piece should not be complete yet")
	}
	if !p.AppendBlock(0, 8, data[8:]) {
		t.Fatal("expected second block to be accepted")
	}
	if !p.IsComplete() {
		t.Fatal("expected piece to be complete")
	}
	if !p.Verify() {
		t.Fatal("expected hash to verify")
	}
}

func TestAssemblerRejectsOutOfOrderOrWrongIndex(t *testing.T) {
	data := []byte("0123456789abcdef")
	digest := sha1.Sum(data)
	p := New(1, uint32(len(data)), digest)

	if p.AppendBlock(1, 4, data[:4]) {
		t.Fatal("block with wrong begin must be rejected")
	}
	if p.AppendBlock(0, 0, data[:4]) {
		t.Fatal("block with wrong piece index must be rejected")
	}
	if p.DownloadedOffset != 0 {
		t.Fatalf("rejected blocks must not advance downloaded offset, got %d", p.DownloadedOffset)
	}

	if !p.AppendBlock(1, 0, data[:4]) {
		t.Fatal("expected correctly addressed block to be accepted")
	}
	// A duplicate/retrograde resend of the same span must be dropped.
	if p.AppendBlock(1, 0, data[:4]) {
		t.Fatal("duplicate block must be rejected once offset has advanced")
	}
	if p.DownloadedOffset != 4 {
		t.Fatalf("expected downloaded offset 4, got %d", p.DownloadedOffset)
	}
}

func TestVerifyRejectsBadHash(t *testing.T) {
	var digest [20]byte
	p := New(0, 4, digest)
	p.AppendBlock(0, 0, []byte("abcd"))
	if p.Verify() {
		t.Fatal("expected hash mismatch to fail verification")
	}
}

func TestNextBlockLengthCapsAtBlockSizeAndRemainder(t *testing.T) {
	p := New(0, BlockSize+100, [20]byte{})
	if got := p.NextBlockLength(); got != BlockSize {
		t.Fatalf("expected first block length %d, got %d", BlockSize, got)
	}
	p.MarkRequested(BlockSize)
	if got := p.NextBlockLength(); got != 100 {
		t.Fatalf("expected trailing block length 100, got %d", got)
	}
}

func TestResetClearsProgress(t *testing.T) {
	p := New(0, 8, [20]byte{})
	p.MarkRequested(8)
	p.AppendBlock(0, 0, []byte("abcdefgh"))
	p.Reset()
	if p.RequestedOffset != 0 || p.DownloadedOffset != 0 || len(p.Blocks) != 0 {
		t.Fatalf("expected reset descriptor, got %+v", p)
	}
}

func TestQueueConservation(t *testing.T) {
	pieces := []*Piece{New(0, 1, [20]byte{}), New(1, 1, [20]byte{})}
	q := NewQueue(pieces)

	p0, ok := q.PopFront()
	if !ok || p0.Index != 0 {
		t.Fatalf("expected piece 0 first, got %+v ok=%v", p0, ok)
	}
	p1, ok := q.PopFront()
	if !ok || p1.Index != 1 {
		t.Fatalf("expected piece 1 second, got %+v ok=%v", p1, ok)
	}
	if _, ok := q.PopFront(); ok {
		t.Fatal("expected empty queue to return false, not block")
	}

	q.PushBack(p1)
	if q.Len() != 1 {
		t.Fatalf("expected queue length 1 after push back, got %d", q.Len())
	}
}

func TestMonitorWantedComplement(t *testing.T) {
	m := NewMonitor(4)
	m.MarkPieceDone(0)
	m.MarkPieceDone(2)

	want := m.WantedComplement()
	if want.Has(0) || want.Has(2) {
		t.Fatal("completed pieces must not appear in the wanted complement")
	}
	if !want.Has(1) || !want.Has(3) {
		t.Fatal("pieces not yet marked done must appear in the wanted complement")
	}

	if m.IsComplete() {
		t.Fatal("monitor should not be complete until SetComplete is called")
	}
	m.SetComplete()
	if !m.IsComplete() {
		t.Fatal("expected monitor to report complete")
	}
}
