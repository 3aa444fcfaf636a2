// Package memory models the device heap.
//
// A Heap hands out Blocks against a fixed byte budget and records the lowest
// free space ever reached, which the supervisor compares with its low-memory
// floor. Task stacks and the receiver's per-iteration buffers are both drawn
// from it, so a starved heap surfaces as allocation failures rather than as
// unbounded process growth.
//
// Example Usage:
//
//	heap, _ := memory.NewHeap(320 * 1024)
//	block, err := heap.Alloc(4)
//	if errors.Is(err, memory.ErrAllocation) {
//		// back off and retry
//	}
//	defer block.Free()
package memory
