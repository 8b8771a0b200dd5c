// Package memory pools the float32 scratch buffers that stage kernels need
// per sample, so im2col matrices are reused across batches.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// BufferPool hands out zeroed float32 buffers grouped in power-of-two size
// classes.
type BufferPool struct {
	mu      sync.Mutex
	classes map[int]*sizeClass
}

type sizeClass struct {
	pool     sync.Pool
	gets     int64
	puts     int64
	inUse    int64
	maxInUse int64
	misses   atomic.Int64
}

// PoolStats tracks statistics for one size class
type PoolStats struct {
	Gets     int64
	Puts     int64
	Misses   int64
	InUse    int64
	MaxInUse int64
}

// NewBufferPool creates an empty pool
func NewBufferPool() *BufferPool {
	return &BufferPool{classes: make(map[int]*sizeClass)}
}

var defaultPool = NewBufferPool()

// Get takes a buffer from the shared pool
func Get(size int) []float32 { return defaultPool.Get(size) }

// Put returns a buffer to the shared pool
func Put(buf []float32) { defaultPool.Put(buf) }

// Default returns the shared pool
func Default() *BufferPool { return defaultPool }

// Get returns a zeroed buffer of exactly size elements
func (bp *BufferPool) Get(size int) []float32 {
	if size <= 0 {
		return nil
	}
	classSize := roundUpToPowerOf2(size)

	bp.mu.Lock()
	class, ok := bp.classes[classSize]
	if !ok {
		class = &sizeClass{}
		class.pool.New = func() any {
			class.misses.Add(1)
			buf := make([]float32, classSize)
			return &buf
		}
		bp.classes[classSize] = class
	}
	class.gets++
	class.inUse++
	if class.inUse > class.maxInUse {
		class.maxInUse = class.inUse
	}
	bp.mu.Unlock()

	buf := *class.pool.Get().(*[]float32)
	return buf[:size]
}

// Put zeroes buf and returns it to its size class. Buffers that did not
// come from Get are dropped.
func (bp *BufferPool) Put(buf []float32) {
	if cap(buf) == 0 {
		return
	}
	classSize := cap(buf)

	bp.mu.Lock()
	class, ok := bp.classes[classSize]
	if ok {
		class.puts++
		class.inUse--
	}
	bp.mu.Unlock()
	if !ok {
		return
	}

	buf = buf[:classSize]
	clear(buf)
	class.pool.Put(&buf)
}

// Stats returns a snapshot keyed by size class
func (bp *BufferPool) Stats() map[int]PoolStats {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	stats := make(map[int]PoolStats, len(bp.classes))
	for size, c := range bp.classes {
		stats[size] = PoolStats{
			Gets:     c.gets,
			Puts:     c.puts,
			Misses:   c.misses.Load(),
			InUse:    c.inUse,
			MaxInUse: c.maxInUse,
		}
	}
	return stats
}

// String returns a string representation of pool statistics
func (bp *BufferPool) String() string {
	stats := bp.Stats()
	sizes := make([]int, 0, len(stats))
	for size := range stats {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)

	var b strings.Builder
	b.WriteString("BufferPool Statistics:\n")
	for _, size := range sizes {
		stat := stats[size]
		hitRate := float64(0)
		if stat.Gets > 0 {
			hitRate = float64(stat.Gets-stat.Misses) / float64(stat.Gets) * 100
		}
		fmt.Fprintf(&b, "  Size %d: Gets=%d, Puts=%d, InUse=%d, MaxInUse=%d, HitRate=%.1f%%\n",
			size, stat.Gets, stat.Puts, stat.InUse, stat.MaxInUse, hitRate)
	}
	return b.String()
}

func roundUpToPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
