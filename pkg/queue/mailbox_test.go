package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_FIFO(t *testing.T) {
	m := NewMailbox[int]()
	for i := 0; i < 100; i++ {
		m.Push(i)
	}
	assert.Equal(t, 100, m.Len())

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		got, err := m.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}
	assert.Equal(t, 0, m.Len())

	_, ok := m.TryPop()
	assert.False(t, ok)
}

func TestMailbox_PopWaitsForPush(t *testing.T) {
	m := NewMailbox[string]()
	result := make(chan string, 1)

	go func() {
		item, err := m.Pop(context.Background())
		if err == nil {
			result <- item
		}
	}()

	time.Sleep(10 * time.Millisecond)
	m.Push("task")

	select {
	case got := <-result:
		assert.Equal(t, "task", got)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up after Push")
	}
}

func TestMailbox_PopHonoursContext(t *testing.T) {
	m := NewMailbox[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMailbox_ConcurrentProducersSingleConsumer(t *testing.T) {
	m := NewMailbox[int]()
	const producers, perProducer = 8, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				m.Push(base*perProducer + i)
			}
		}(p)
	}

	seen := make(map[int]bool)
	lastPerProducer := make(map[int]int)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for len(seen) < producers*perProducer {
		item, err := m.Pop(ctx)
		require.NoError(t, err)
		assert.False(t, seen[item], "duplicate item %d", item)
		seen[item] = true

		producer := item / perProducer
		if last, ok := lastPerProducer[producer]; ok {
			assert.Greater(t, item, last, "per-producer order must be kept")
		}
		lastPerProducer[producer] = item
	}
	wg.Wait()
	assert.Equal(t, 0, m.Len())
}
