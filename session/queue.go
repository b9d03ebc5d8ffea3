package session

import (
	"sync"

	"github.com/lexcodex/blockkernel/framework"
)

// changeQueue is an unbounded FIFO of kernel changes with a wake signal for
// a single consumer. push never blocks, so producers running on the consumer
// goroutine (a listener selecting a kernel) cannot stall it.
type changeQueue struct {
	mu      sync.Mutex
	pending []framework.KernelChange
	wake    chan struct{}
}

func newChangeQueue() *changeQueue {
	return &changeQueue{wake: make(chan struct{}, 1)}
}

func (q *changeQueue) push(change framework.KernelChange) {
	q.mu.Lock()
	q.pending = append(q.pending, change)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain takes every queued change in arrival order.
func (q *changeQueue) drain() []framework.KernelChange {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}
