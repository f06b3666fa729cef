package queue

import "github.com/XC-/bthost"

// A BidiQueue couples two queues into a full-duplex link: Up items flow
// toward the upper layer, Down items toward the controller. Each side
// of the link holds one endpoint.
type BidiQueue[Up any, Down any] struct {
	toUpper *Queue[Up]
	toLower *Queue[Down]
}

// NewBidi builds a bidi queue. Capacities pace the respective enqueue
// callbacks; <= 0 means unpaced.
func NewBidi[Up any, Down any](upCapacity, downCapacity int) *BidiQueue[Up, Down] {
	return &BidiQueue[Up, Down]{
		toUpper: New[Up](upCapacity),
		toLower: New[Down](downCapacity),
	}
}

// UpEnd returns the endpoint held by the upper layer: it sends Down
// items and receives Up items.
func (b *BidiQueue[Up, Down]) UpEnd() *UpEnd[Up, Down] { return &UpEnd[Up, Down]{b} }

// DownEnd returns the endpoint held by the lower layer: it sends Up
// items and receives Down items.
func (b *BidiQueue[Up, Down]) DownEnd() *DownEnd[Up, Down] { return &DownEnd[Up, Down]{b} }

// UpEnd is the upper layer's view of a BidiQueue.
type UpEnd[Up any, Down any] struct {
	b *BidiQueue[Up, Down]
}

func (e *UpEnd[Up, Down]) Enqueue(item Down) { e.b.toLower.Enqueue(item) }

func (e *UpEnd[Up, Down]) RegisterEnqueue(tq *bthost.TaskQueue, fn func() (Down, bool)) {
	e.b.toLower.RegisterEnqueue(tq, fn)
}
func (e *UpEnd[Up, Down]) UnregisterEnqueue() { e.b.toLower.UnregisterEnqueue() }

func (e *UpEnd[Up, Down]) RegisterDequeue(tq *bthost.TaskQueue, fn func(Up)) {
	e.b.toUpper.RegisterDequeue(tq, fn)
}
func (e *UpEnd[Up, Down]) UnregisterDequeue()     { e.b.toUpper.UnregisterDequeue() }
func (e *UpEnd[Up, Down]) TryDequeue() (Up, bool) { return e.b.toUpper.TryDequeue() }

// DownEnd is the lower layer's view of a BidiQueue.
type DownEnd[Up any, Down any] struct {
	b *BidiQueue[Up, Down]
}

func (e *DownEnd[Up, Down]) Enqueue(item Up) { e.b.toUpper.Enqueue(item) }

func (e *DownEnd[Up, Down]) RegisterEnqueue(tq *bthost.TaskQueue, fn func() (Up, bool)) {
	e.b.toUpper.RegisterEnqueue(tq, fn)
}
func (e *DownEnd[Up, Down]) UnregisterEnqueue() { e.b.toUpper.UnregisterEnqueue() }

func (e *DownEnd[Up, Down]) RegisterDequeue(tq *bthost.TaskQueue, fn func(Down)) {
	e.b.toLower.RegisterDequeue(tq, fn)
}
func (e *DownEnd[Up, Down]) UnregisterDequeue()       { e.b.toLower.UnregisterDequeue() }
func (e *DownEnd[Up, Down]) TryDequeue() (Down, bool) { return e.b.toLower.TryDequeue() }
