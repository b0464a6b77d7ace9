package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunsInOrder(t *testing.T) {
	loop := NewLoop()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, loop.Post(func() { got = append(got, i) }))
	}
	loop.Close()

	select {
	case <-loop.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not drain")
	}

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoop_PostAfterClose(t *testing.T) {
	loop := NewLoop()
	loop.Close()
	<-loop.Done()

	assert.False(t, loop.Post(func() {}))
}

func TestLoop_PostFromLoop(t *testing.T) {
	loop := NewLoop()
	defer loop.Close()

	done := make(chan struct{})
	loop.Post(func() {
		loop.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("nested post never ran")
	}
}

func TestLoop_Serial(t *testing.T) {
	loop := NewLoop()

	var (
		mu      sync.Mutex
		running int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				loop.Post(func() {
					mu.Lock()
					running++
					maxSeen = max(maxSeen, running)
					mu.Unlock()

					time.Sleep(10 * time.Microsecond)

					mu.Lock()
					running--
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()
	loop.Close()
	<-loop.Done()

	assert.Equal(t, 1, maxSeen, "completions must never overlap")
}
