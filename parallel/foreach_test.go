package parallel

import (
	"sync/atomic"
	"testing"
)

func TestForEach(t *testing.T) {
	for _, limit := range []int{-1, 0, 1, 3, 64} {
		seen := make([]int32, 100)
		var running, peak int32

		ForEach(len(seen), limit, func(i int) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			atomic.AddInt32(&seen[i], 1)
			atomic.AddInt32(&running, -1)
		})

		for i, v := range seen {
			if v != 1 {
				t.Errorf("limit %d: index %d visited %d times", limit, i, v)
			}
		}
		max := int32(limit)
		if max < 1 {
			max = 1
		}
		if peak > max {
			t.Errorf("limit %d: %d bodies ran concurrently", limit, peak)
		}
	}
}

func TestForEachEmpty(t *testing.T) {
	called := false
	ForEach(0, 4, func(int) { called = true })
	if called {
		t.Error("body called for zero length")
	}
}

func TestWorkers(t *testing.T) {
	if Workers() < 1 {
		t.Errorf("Workers() = %d, expected >= 1", Workers())
	}
}
