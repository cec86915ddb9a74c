package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, int64(0), clock.Current())
	assert.Equal(t, int64(1), clock.Next())
	assert.Equal(t, int64(2), clock.Next())
	assert.Equal(t, int64(2), clock.Current())

	clock.Reset()
	assert.Equal(t, int64(0), clock.Current())
	assert.Equal(t, int64(1), clock.Next(), "numbering restarts after reset")
}

func TestDeterministicClock_Concurrent(t *testing.T) {
	clock := NewDeterministicClock()
	const workers, calls = 50, 200

	seen := make(chan int64, workers*calls)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range calls {
				seen <- clock.Next()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]bool)
	for v := range seen {
		unique[v] = true
	}
	assert.Len(t, unique, workers*calls)
	assert.Equal(t, int64(workers*calls), clock.Current())
}
