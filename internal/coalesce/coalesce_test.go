package coalesce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoCoalescesConcurrentCallsIntoOneFetch(t *testing.T) {
	g := New(func(v int) int { return v }, 0)

	var calls int32
	var wg sync.WaitGroup
	results := make([]int, 10)
	fetches := make([]bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err, didFetch := g.Do("key", func() (int, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(10 * time.Millisecond)
				return 42, nil
			})
			require.NoError(t, err)
			results[i] = r
			fetches[i] = didFetch
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls)
	fetchCount := 0
	for i, r := range results {
		assert.Equal(t, 42, r)
		if fetches[i] {
			fetchCount++
		}
	}
	assert.Equal(t, 1, fetchCount)
}

func TestDoClonesResultPerWaiter(t *testing.T) {
	g := New(func(v []int) []int {
		c := make([]int, len(v))
		copy(c, v)
		return c
	}, 0)

	var wg sync.WaitGroup
	results := make([][]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, _, _ := g.Do("key", func() ([]int, error) {
				time.Sleep(10 * time.Millisecond)
				return []int{1, 2, 3}, nil
			})
			results[i] = r
		}(i)
	}
	wg.Wait()

	results[0][0] = 99
	assert.NotEqual(t, results[0][0], results[1][0])
}

func TestDoDifferentKeysRunIndependently(t *testing.T) {
	g := New(func(v int) int { return v }, 0)
	var calls int32
	for _, k := range []string{"a", "b"} {
		_, _, didFetch := g.Do(k, func() (int, error) {
			atomic.AddInt32(&calls, 1)
			return 1, nil
		})
		assert.True(t, didFetch)
	}
	assert.EqualValues(t, 2, calls)
}

func TestSweepRemovesStaleEntries(t *testing.T) {
	g := New(func(v int) int { return v }, time.Millisecond)
	done := make(chan struct{})
	go func() {
		_, _, _ = g.Do("stuck", func() (int, error) {
			<-done
			return 1, nil
		})
	}()
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, 1, g.Inflight())
	g.Sweep()
	assert.Equal(t, 0, g.Inflight())
	close(done)
}

func TestInflightReflectsActiveCalls(t *testing.T) {
	g := New(func(v int) int { return v }, 0)
	assert.Equal(t, 0, g.Inflight())

	release := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		_, _, _ = g.Do("active", func() (int, error) {
			<-release
			return 1, nil
		})
		close(finished)
	}()
	require.Eventually(t, func() bool { return g.Inflight() == 1 }, time.Second, time.Millisecond)
	close(release)
	<-finished
	assert.Equal(t, 0, g.Inflight())
}
