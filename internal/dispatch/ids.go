package dispatch

import (
	"sync/atomic"

	"github.com/timechildgames/cloudrelay/internal/queue"
)

// Allocator hands out request IDs starting at 0.
type Allocator struct {
	next atomic.Int64
}

// Next reserves and returns the next ID.
func (a *Allocator) Next() queue.RequestID {
	return queue.RequestID(a.next.Add(1) - 1)
}

// Issued returns how many IDs have been reserved.
func (a *Allocator) Issued() int64 {
	return a.next.Load()
}
