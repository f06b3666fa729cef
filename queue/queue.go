// Package queue provides the FIFO pairs that wire stack modules
// together. Producers and consumers register callbacks bound to their
// own task queues; the queue posts work to the right queue so neither
// side ever touches the other's state directly.
package queue

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/XC-/bthost"
)

var fatalf = func(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}

type dequeueReg[T any] struct {
	tq *bthost.TaskQueue
	fn func(T)
}

type enqueueReg[T any] struct {
	tq *bthost.TaskQueue
	fn func() (T, bool)
}

// A Queue is a FIFO of T with callback-driven ends.
//
// The consumer side registers a dequeue callback: while registered,
// each queued item is delivered, one at a time, on the consumer's task
// queue. The producer side may either Enqueue directly or register an
// enqueue callback: while registered and the buffer has room, the
// callback is pulled on the producer's task queue for the next item.
//
// capacity bounds the internal buffer only for the purpose of pacing
// enqueue callbacks; direct Enqueue is never rejected.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int

	deq     *dequeueReg[T]
	deqBusy bool
	enq     *enqueueReg[T]
	enqBusy bool
}

// New returns a queue. capacity <= 0 means the buffer never paces
// enqueue callbacks (effectively unbounded).
func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{capacity: capacity}
}

// Enqueue appends item and schedules delivery if a dequeue callback is
// registered.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.pumpDequeueLocked()
	q.mu.Unlock()
}

// TryDequeue pops the front item if one is queued. It is the polling
// alternative to RegisterDequeue for consumers without a task queue.
func (q *Queue[T]) TryDequeue() (T, bool) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	q.pumpEnqueueLocked()
	return item, true
}

// Len reports the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// RegisterDequeue arranges for each queued item to be handed to fn on
// tq. At most one dequeue registration may exist at a time.
func (q *Queue[T]) RegisterDequeue(tq *bthost.TaskQueue, fn func(T)) {
	q.mu.Lock()
	if q.deq != nil {
		q.mu.Unlock()
		fatalf("queue: dequeue already registered")
		return
	}
	q.deq = &dequeueReg[T]{tq: tq, fn: fn}
	q.pumpDequeueLocked()
	q.mu.Unlock()
}

// UnregisterDequeue detaches the dequeue callback. A delivery already
// posted but not yet run is abandoned; its item stays queued.
func (q *Queue[T]) UnregisterDequeue() {
	q.mu.Lock()
	q.deq = nil
	q.mu.Unlock()
}

// RegisterEnqueue arranges for fn to be pulled on tq for the next item
// whenever the buffer has room. fn may call UnregisterEnqueue (even on
// its own invocation) and still return a final item. Returning ok=false
// yields nothing and leaves the registration idle until the buffer
// drains again.
func (q *Queue[T]) RegisterEnqueue(tq *bthost.TaskQueue, fn func() (T, bool)) {
	q.mu.Lock()
	if q.enq != nil {
		q.mu.Unlock()
		fatalf("queue: enqueue already registered")
		return
	}
	q.enq = &enqueueReg[T]{tq: tq, fn: fn}
	q.pumpEnqueueLocked()
	q.mu.Unlock()
}

// UnregisterEnqueue detaches the enqueue callback.
func (q *Queue[T]) UnregisterEnqueue() {
	q.mu.Lock()
	q.enq = nil
	q.mu.Unlock()
}

// pumpDequeueLocked posts one delivery task if the consumer is
// registered, idle, and an item is available. Iterative redelivery
// happens from the posted task itself, keeping the FIFO drain flat
// rather than recursive.
func (q *Queue[T]) pumpDequeueLocked() {
	if q.deq == nil || q.deqBusy || len(q.items) == 0 {
		return
	}
	q.deqBusy = true
	reg := q.deq
	reg.tq.Post(func() { q.deliver(reg) })
}

func (q *Queue[T]) deliver(reg *dequeueReg[T]) {
	q.mu.Lock()
	q.deqBusy = false
	if q.deq != reg || len(q.items) == 0 {
		// Unregistered (or re-registered) since the post; leave the
		// item for the current consumer, if any.
		q.pumpDequeueLocked()
		q.mu.Unlock()
		return
	}
	item := q.items[0]
	q.items = q.items[1:]
	q.deqBusy = true
	q.mu.Unlock()

	reg.fn(item)

	q.mu.Lock()
	q.deqBusy = false
	q.pumpDequeueLocked()
	q.pumpEnqueueLocked()
	q.mu.Unlock()
}

func (q *Queue[T]) pumpEnqueueLocked() {
	if q.enq == nil || q.enqBusy {
		return
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return
	}
	q.enqBusy = true
	reg := q.enq
	reg.tq.Post(func() { q.pull(reg) })
}

func (q *Queue[T]) pull(reg *enqueueReg[T]) {
	q.mu.Lock()
	q.enqBusy = false
	if q.enq != reg {
		q.mu.Unlock()
		return
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	item, ok := reg.fn()

	q.mu.Lock()
	if ok {
		q.items = append(q.items, item)
		q.pumpDequeueLocked()
	}
	if ok && q.enq != nil {
		q.pumpEnqueueLocked()
	}
	q.mu.Unlock()
}
