package piece

import "sync"

// Queue is the shared, mutex-guarded FIFO work pool of undone pieces
// (spec §4.4). Writers are serialized; a reader never observes a
// partial modification, and pop-front on an empty queue never blocks.
type Queue struct {
	mu    sync.Mutex
	items []*Piece
}

// NewQueue builds a queue pre-loaded with the given pieces.
func NewQueue(pieces []*Piece) *Queue {
	items := make([]*Piece, len(pieces))
	copy(items, pieces)
	return &Queue{items: items}
}

// PopFront removes and returns the first piece, or (nil, false) if
// the queue is empty.
func (q *Queue) PopFront() (*Piece, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	p := q.items[0]
	q.items = q.items[1:]
	return p, true
}

// PushBack appends p to the end of the queue.
func (q *Queue) PushBack(p *Piece) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, p)
}

// Len reports the number of pieces currently queued. Intended for
// progress reporting only — the count can change immediately after
// the call returns.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
