// Package piece implements the per-piece assembler (spec §4.3), the
// shared piece queue (spec §4.4) and the completion monitor (spec
// §4.7) that the session loop drives work against.
package piece

import "crypto/sha1"

// BlockSize is the standard request granularity (16 KiB, spec §6).
const BlockSize = 16 * 1024

// Piece is a single, fixed-size (except the last) chunk of content,
// owned either by the queue or by exactly one session at a time
// (spec §3 invariant).
type Piece struct {
	Index            uint32
	TotalLength      uint32
	RequestedOffset  uint32
	DownloadedOffset uint32
	Blocks           []byte
	ExpectedDigest   [20]byte
	BadAttempts      int
}

// New allocates a piece descriptor ready to be queued.
func New(index uint32, totalLength uint32, digest [20]byte) *Piece {
	return &Piece{
		Index:          index,
		TotalLength:    totalLength,
		Blocks:         make([]byte, 0, totalLength),
		ExpectedDigest: digest,
	}
}

// NextBlockLength returns the length of the next block to request:
// min(BlockSize, remaining unrequested bytes).
func (p *Piece) NextBlockLength() uint32 {
	remaining := p.TotalLength - p.RequestedOffset
	if remaining > BlockSize {
		return BlockSize
	}
	return remaining
}

// MarkRequested advances RequestedOffset by length, called once a
// Request frame for that span has actually been sent.
func (p *Piece) MarkRequested(length uint32) {
	p.RequestedOffset += length
}

// AppendBlock accepts a Piece frame's block iff begin matches the
// next expected offset and the index matches this descriptor.
// Anything else — stale, out of order, or for a different piece —
// is silently discarded, per spec §4.3/§9.
func (p *Piece) AppendBlock(index, begin uint32, block []byte) bool {
	if index != p.Index || begin != p.DownloadedOffset {
		return false
	}
	p.Blocks = append(p.Blocks, block...)
	p.DownloadedOffset += uint32(len(block))
	return true
}

// IsComplete reports whether every byte of the piece has arrived.
func (p *Piece) IsComplete() bool {
	return p.DownloadedOffset == p.TotalLength
}

// Verify reports whether the assembled bytes hash to ExpectedDigest.
func (p *Piece) Verify() bool {
	return sha1.Sum(p.Blocks) == p.ExpectedDigest
}

// Reset clears in-flight progress so the descriptor can be requeued
// and downloaded again, by this or another session.
func (p *Piece) Reset() {
	p.RequestedOffset = 0
	p.DownloadedOffset = 0
	p.Blocks = p.Blocks[:0]
}

// IncrementBadAttempts records one more failed-verify attempt for this
// piece and returns the new count, for callers tracking a bad-hash
// drop threshold.
func (p *Piece) IncrementBadAttempts() int {
	p.BadAttempts++
	return p.BadAttempts
}
