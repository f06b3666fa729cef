package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XC-/bthost"
)

type intCollector struct {
	mu  sync.Mutex
	got []int
}

func (c *intCollector) add(v int) {
	c.mu.Lock()
	c.got = append(c.got, v)
	c.mu.Unlock()
}

func (c *intCollector) snapshot() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.got...)
}

func TestQueueDeliversInOrder(t *testing.T) {
	tq := bthost.NewTaskQueue("consumer")
	defer tq.Shutdown()

	q := New[int](0)
	var c intCollector
	q.RegisterDequeue(tq, c.add)
	for i := 0; i < 20; i++ {
		q.Enqueue(i)
	}

	assert.Eventually(t, func() bool { return len(c.snapshot()) == 20 }, time.Second, time.Millisecond)
	want := make([]int, 20)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, c.snapshot())
}

func TestQueueUnregisteredKeepsItems(t *testing.T) {
	tq := bthost.NewTaskQueue("consumer")
	defer tq.Shutdown()

	q := New[int](0)
	q.Enqueue(1)
	q.Enqueue(2)
	assert.Equal(t, 2, q.Len())

	// A late consumer still sees everything.
	var c intCollector
	q.RegisterDequeue(tq, c.add)
	assert.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []int{1, 2}, c.snapshot())
}

func TestQueueUnregisterStopsDelivery(t *testing.T) {
	tq := bthost.NewTaskQueue("consumer")
	defer tq.Shutdown()

	q := New[int](0)
	var c intCollector
	q.RegisterDequeue(tq, func(v int) {
		c.add(v)
		if v == 0 {
			q.UnregisterDequeue()
		}
	})
	q.Enqueue(0)
	q.Enqueue(1)

	assert.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, time.Second, time.Millisecond)
	tq.Sync()
	assert.Equal(t, []int{0}, c.snapshot())
	assert.Equal(t, 1, q.Len())
}

func TestQueueTryDequeue(t *testing.T) {
	q := New[int](0)
	_, ok := q.TryDequeue()
	assert.False(t, ok)

	q.Enqueue(7)
	v, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestQueueEnqueueCallbackPacedByCapacity(t *testing.T) {
	prod := bthost.NewTaskQueue("producer")
	cons := bthost.NewTaskQueue("consumer")
	defer prod.Shutdown()
	defer cons.Shutdown()

	q := New[int](1)

	var mu sync.Mutex
	next := 0
	pulls := 0
	q.RegisterEnqueue(prod, func() (int, bool) {
		mu.Lock()
		defer mu.Unlock()
		pulls++
		if next == 5 {
			q.UnregisterEnqueue()
			return 0, false
		}
		v := next
		next++
		return v, true
	})

	var c intCollector
	q.RegisterDequeue(cons, c.add)

	assert.Eventually(t, func() bool { return len(c.snapshot()) == 5 }, time.Second, time.Millisecond)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, c.snapshot())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 6, pulls, "one pull per item plus the final refusal")
}

func TestQueueEnqueueCallbackCanUnregisterAndStillReturn(t *testing.T) {
	prod := bthost.NewTaskQueue("producer")
	defer prod.Shutdown()

	q := New[int](1)
	q.RegisterEnqueue(prod, func() (int, bool) {
		q.UnregisterEnqueue()
		return 42, true
	})

	assert.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, time.Millisecond)
	v, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 42, v)

	// No further pulls after the self-unregister.
	prod.Sync()
	assert.Equal(t, 0, q.Len())
}

func TestQueueDoubleRegisterFatal(t *testing.T) {
	prev := fatalf
	fatalf = func(format string, args ...interface{}) { panic(format) }
	t.Cleanup(func() { fatalf = prev })

	tq := bthost.NewTaskQueue("consumer")
	defer tq.Shutdown()

	q := New[int](0)
	q.RegisterDequeue(tq, func(int) {})
	assert.Panics(t, func() { q.RegisterDequeue(tq, func(int) {}) })
}

func TestBidiQueueEndsAreCrossed(t *testing.T) {
	upper := bthost.NewTaskQueue("upper")
	lower := bthost.NewTaskQueue("lower")
	defer upper.Shutdown()
	defer lower.Shutdown()

	b := NewBidi[string, int](0, 0)

	var down intCollector
	b.DownEnd().RegisterDequeue(lower, down.add)

	var mu sync.Mutex
	var up []string
	b.UpEnd().RegisterDequeue(upper, func(s string) {
		mu.Lock()
		up = append(up, s)
		mu.Unlock()
	})

	b.UpEnd().Enqueue(1)       // upper sends down
	b.DownEnd().Enqueue("one") // lower sends up

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(up) == 1 && len(down.snapshot()) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, []int{1}, down.snapshot())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one"}, up)
}
