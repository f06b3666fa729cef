package bthost

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// A TaskQueue is a single-threaded FIFO. Every callback addressed to a
// module is serialized through its queue, so module state needs no
// locks.
type TaskQueue struct {
	name string

	mu   sync.Mutex
	fifo []func()
	quit bool

	wake chan struct{}
	done chan struct{}
}

// NewTaskQueue starts the queue's goroutine.
func NewTaskQueue(name string) *TaskQueue {
	q := &TaskQueue{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *TaskQueue) Name() string { return q.name }

// Post enqueues f to run on the queue's goroutine. Posting after
// Shutdown drops f with a warning; stop-time races are expected.
func (q *TaskQueue) Post(f func()) {
	q.mu.Lock()
	if q.quit {
		q.mu.Unlock()
		log.WithField("queue", q.name).Warn("task posted after shutdown, dropped")
		return
	}
	q.fifo = append(q.fifo, f)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Sync blocks until every task posted before the call has run. It must
// not be called from the queue's own goroutine.
func (q *TaskQueue) Sync() {
	ran := make(chan struct{})
	q.Post(func() { close(ran) })
	select {
	case <-ran:
	case <-q.done:
	}
}

// Shutdown runs the tasks already queued, then stops the goroutine.
func (q *TaskQueue) Shutdown() {
	q.mu.Lock()
	if q.quit {
		q.mu.Unlock()
		return
	}
	q.quit = true
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

func (q *TaskQueue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		fifo := q.fifo
		q.fifo = nil
		quit := q.quit
		q.mu.Unlock()

		for _, f := range fifo {
			f()
		}
		if quit {
			q.mu.Lock()
			empty := len(q.fifo) == 0
			q.mu.Unlock()
			if empty {
				return
			}
			continue
		}
		if len(fifo) == 0 {
			<-q.wake
		}
	}
}
