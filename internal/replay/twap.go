package replay

import (
	"container/heap"

	"kestrel/internal/feed"
)

// SliceVolumes splits volume into n integer parts using cumulative floor
// division, so the parts always sum to volume and differ by at most one.
func SliceVolumes(volume int64, n uint32) []int64 {
	parts := make([]int64, n)
	for i := uint32(0); i < n; i++ {
		parts[i] = volume*int64(i+1)/int64(n) - volume*int64(i)/int64(n)
	}
	return parts
}

// sliceHeap orders pending execution slices by scheduled timestamp. Slices
// pushed earlier win ties, matching the submission order of equal-time
// slices from the same signal.
type sliceHeap struct {
	items []pendingSlice
	seq   uint64
}

type pendingSlice struct {
	rec feed.TwapOrder
	seq uint64
}

func (h *sliceHeap) Len() int { return len(h.items) }

func (h *sliceHeap) Less(i, j int) bool {
	if h.items[i].rec.Timestamp != h.items[j].rec.Timestamp {
		return h.items[i].rec.Timestamp < h.items[j].rec.Timestamp
	}
	return h.items[i].seq < h.items[j].seq
}

func (h *sliceHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *sliceHeap) Push(x any) {
	h.items = append(h.items, x.(pendingSlice))
}

func (h *sliceHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

func (h *sliceHeap) push(rec feed.TwapOrder) {
	heap.Push(h, pendingSlice{rec: rec, seq: h.seq})
	h.seq++
}

func (h *sliceHeap) pop() feed.TwapOrder {
	return heap.Pop(h).(pendingSlice).rec
}

func (h *sliceHeap) peek() feed.TwapOrder {
	return h.items[0].rec
}
