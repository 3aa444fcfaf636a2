package memory

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	pool "github.com/libp2p/go-buffer-pool"
	sysmem "github.com/pbnjay/memory"
	"golang.org/x/sync/semaphore"
)

var (
	ErrAllocation    = errors.New("allocation failed")
	ErrInvalidBudget = errors.New("heap budget must be positive")
)

// Heap accounts allocations against a fixed byte budget, the way a
// device heap does. It tracks current free space and the lowest free
// space ever observed.
type Heap struct {
	budget  int64
	sem     *semaphore.Weighted
	inUse   atomic.Int64
	minFree atomic.Int64
}

// NewHeap creates a heap with the given budget in bytes
func NewHeap(budget int64) (*Heap, error) {
	if budget <= 0 {
		return nil, ErrInvalidBudget
	}
	h := &Heap{
		budget: budget,
		sem:    semaphore.NewWeighted(budget),
	}
	h.minFree.Store(budget)
	return h, nil
}

// Alloc reserves size bytes. It never blocks; when the budget cannot cover
// the request it returns ErrAllocation.
func (h *Heap) Alloc(size int) (*Block, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: invalid size %d", ErrAllocation, size)
	}
	if !h.sem.TryAcquire(int64(size)) {
		return nil, fmt.Errorf("%w: %d bytes requested, %d free", ErrAllocation, size, h.FreeBytes())
	}

	used := h.inUse.Add(int64(size))
	h.observeFree(h.budget - used)

	return &Block{
		heap: h,
		buf:  pool.Get(size),
		size: int64(size),
	}, nil
}

// FreeBytes returns the bytes currently available
func (h *Heap) FreeBytes() int64 {
	return h.budget - h.inUse.Load()
}

// MinimumEverFree returns the lowest free byte count observed since creation
func (h *Heap) MinimumEverFree() int64 {
	return h.minFree.Load()
}

// Budget returns the heap size in bytes
func (h *Heap) Budget() int64 {
	return h.budget
}

func (h *Heap) observeFree(free int64) {
	for {
		low := h.minFree.Load()
		if free >= low || h.minFree.CompareAndSwap(low, free) {
			return
		}
	}
}

// Block is a live allocation. Release it exactly once with Free.
type Block struct {
	heap *Heap
	buf  []byte
	size int64
	once sync.Once
}

// Bytes returns the allocated buffer
func (b *Block) Bytes() []byte {
	return b.buf
}

// Size returns the allocation size in bytes
func (b *Block) Size() int64 {
	return b.size
}

// Free returns the block to the heap. Extra calls are ignored.
func (b *Block) Free() {
	b.once.Do(func() {
		pool.Put(b.buf)
		b.buf = nil
		b.heap.inUse.Add(-b.size)
		b.heap.sem.Release(b.size)
	})
}

// Host describes memory on the machine running the system
type Host struct {
	TotalBytes uint64 `json:"total_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
}

// HostStats reads host memory. Zero values mean the platform does not
// report them.
func HostStats() Host {
	return Host{
		TotalBytes: sysmem.TotalMemory(),
		FreeBytes:  sysmem.FreeMemory(),
	}
}
