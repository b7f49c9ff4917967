package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants"
)

// ErrTransportClosed is returned by Send after Close.
var ErrTransportClosed = errors.New("transport closed")

// DefaultWorkers bounds concurrent calls when no worker count is configured.
const DefaultWorkers = 16

// workers runs completion work on an ants pool. Submission happens on a
// short-lived goroutine so callers never wait for a free worker.
type workers struct {
	pool *ants.Pool

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func newWorkers(size int) (*workers, error) {
	if size <= 0 {
		size = DefaultWorkers
	}
	p, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &workers{pool: p}, nil
}

// run schedules task. If the pool rejects it, reject is called instead.
// Exactly one of task or reject runs for every nil return.
func (w *workers) run(task func(), reject func(error)) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrTransportClosed
	}
	w.inflight.Add(1)
	w.mu.Unlock()

	go func() {
		err := w.pool.Submit(func() {
			defer w.inflight.Done()
			task()
		})
		if err != nil {
			w.inflight.Done()
			reject(fmt.Errorf("%w: %v", ErrTransportClosed, err))
		}
	}()
	return nil
}

// running returns the number of busy workers.
func (w *workers) running() int {
	return w.pool.Running()
}

// close stops accepting work, waits for scheduled calls to finish and releases the pool.
func (w *workers) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.inflight.Wait()
	w.pool.Release()
}
