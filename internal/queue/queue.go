package queue

import "sync"

// minCompact is the head offset past which popped slots are reclaimed.
const minCompact = 64

// Queue is a FIFO of completed results, ordered by completion.
// Push may be called from any goroutine; PopOldest never blocks on anything
// other than the queue's own short critical section.
type Queue struct {
	mu    sync.Mutex
	items []Result
	head  int
}

func New() *Queue {
	return &Queue{}
}

// Push appends r to the tail.
func (q *Queue) Push(r Result) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
}

// PopOldest removes and returns the head. ok is false when the queue is empty.
func (q *Queue) PopOldest() (r Result, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return Result{}, false
	}

	r = q.items[q.head]
	q.items[q.head] = Result{}
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= minCompact && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return r, true
}

// Len returns the number of results waiting to be popped.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
