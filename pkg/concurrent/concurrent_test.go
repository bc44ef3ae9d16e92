package concurrent

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForEach_VisitsAll(t *testing.T) {
	for _, workers := range []int{0, 1, 4} {
		var sum atomic.Int64
		err := ForEach([]int{1, 2, 3, 4, 5}, workers, func(v int) error {
			sum.Add(int64(v))
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, int64(15), sum.Load(), "workers=%d", workers)
	}
}

func TestForEach_ErrorDoesNotStopOthers(t *testing.T) {
	boom := errors.New("boom")
	for _, workers := range []int{1, 3} {
		var mu sync.Mutex
		seen := map[int]bool{}
		err := ForEach([]int{1, 2, 3}, workers, func(v int) error {
			mu.Lock()
			seen[v] = true
			mu.Unlock()
			if v == 2 {
				return boom
			}
			return nil
		})
		assert.ErrorIs(t, err, boom)
		assert.Len(t, seen, 3)
	}
}

func TestForEach_BoundsWorkers(t *testing.T) {
	var running, peak atomic.Int32
	release := make(chan struct{})
	done := make(chan error)

	go func() {
		done <- ForEach(make([]int, 8), 2, func(int) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
			return nil
		})
	}()

	for i := 0; i < 8; i++ {
		release <- struct{}{}
	}
	assert.NoError(t, <-done)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestMap_PreservesOrder(t *testing.T) {
	out := Map([]string{"a", "bb", "ccc"}, 3, func(s string) int { return len(s) })
	assert.Equal(t, []int{1, 2, 3}, out)
	assert.Empty(t, Map([]int(nil), 2, func(v int) int { return v }))
}
