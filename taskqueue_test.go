package bthost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskQueueSerializesInOrder(t *testing.T) {
	q := NewTaskQueue("test")
	defer q.Shutdown()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	q.Sync()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestTaskQueuePostFromTask(t *testing.T) {
	q := NewTaskQueue("test")
	defer q.Shutdown()

	done := make(chan struct{})
	q.Post(func() {
		q.Post(func() { close(done) })
	})
	q.Sync()
	q.Sync()
	select {
	case <-done:
	default:
		t.Fatal("nested post never ran")
	}
}

func TestTaskQueueShutdownDrains(t *testing.T) {
	q := NewTaskQueue("test")

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 10; i++ {
		q.Post(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}
	q.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, ran)
}

func TestTaskQueuePostAfterShutdownDropped(t *testing.T) {
	q := NewTaskQueue("test")
	q.Shutdown()

	ran := false
	q.Post(func() { ran = true })
	assert.False(t, ran)
}
