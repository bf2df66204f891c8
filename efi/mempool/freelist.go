package mempool

import (
	"container/heap"
	"math/bits"

	"github.com/r-efi/r-efi-alloc/efi"
)

// Free space is tracked as spans of PoolAlignment granularity, segregated by
// size class into min-heaps. Class k holds spans with size in [2^k, 2^(k+1)).
const numClasses = bits.UintSize

type span struct {
	off       uintptr
	size      uintptr
	heapIndex int
}

type spanHeap []*span

func (h spanHeap) Len() int           { return len(h) }
func (h spanHeap) Less(i, j int) bool { return h[i].size < h[j].size }

func (h spanHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *spanHeap) Push(x any) {
	s := x.(*span) //nolint:errcheck // heap.Interface contract guarantees type
	s.heapIndex = len(*h)
	*h = append(*h, s)
}

func (h *spanHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	s.heapIndex = -1
	*h = old[:n-1]
	return s
}

// freeList is a best-fit allocator over offsets [0, capacity). Neighbouring
// free spans are merged on insert, so a fully freed list is a single span.
type freeList struct {
	classes [numClasses]spanHeap
	byOff   map[uintptr]*span // start offset -> span
	endIdx  map[uintptr]*span // end offset -> span
}

func newFreeList(capacity uintptr) *freeList {
	fl := &freeList{
		byOff:  make(map[uintptr]*span),
		endIdx: make(map[uintptr]*span),
	}
	if size := capacity &^ (efi.PoolAlignment - 1); size > 0 {
		fl.insert(0, size)
	}
	return fl
}

func sizeClass(size uintptr) int {
	return bits.Len(uint(size)) - 1
}

// spans returns the number of free spans.
func (fl *freeList) spans() int {
	return len(fl.byOff)
}

// take reserves need bytes and returns the offset of the reservation. With
// skew set, the offset is chosen so that base+off is PoolAlignment-aligned
// but not 2*PoolAlignment-aligned. need must be a positive multiple of
// PoolAlignment.
func (fl *freeList) take(base, need uintptr, skew bool) (uintptr, bool) {
	pad := func(s *span) uintptr {
		if skew && (base+s.off)%(2*efi.PoolAlignment) == 0 {
			return efi.PoolAlignment
		}
		return 0
	}

	c := sizeClass(need)
	var best *span
	// Spans in need's own class may be too small, so scan for the best fit.
	for _, s := range fl.classes[c] {
		if s.size >= need+pad(s) && (best == nil || s.size < best.size) {
			best = s
		}
	}
	// Every span in a higher class is at least need+PoolAlignment, so the
	// smallest one fits.
	for k := c + 1; best == nil && k < numClasses; k++ {
		if len(fl.classes[k]) > 0 {
			best = fl.classes[k][0]
		}
	}
	if best == nil {
		return 0, false
	}

	off, size, lead := best.off, best.size, pad(best)
	fl.remove(best)
	if lead > 0 {
		fl.insert(off, lead)
	}
	if tail := size - lead - need; tail > 0 {
		fl.insert(off+lead+need, tail)
	}
	return off + lead, true
}

// insert returns [off, off+size) to the list, merging it with free
// neighbours on either side.
func (fl *freeList) insert(off, size uintptr) {
	if next, ok := fl.byOff[off+size]; ok {
		fl.remove(next)
		size += next.size
	}
	if prev, ok := fl.endIdx[off]; ok {
		fl.remove(prev)
		off = prev.off
		size += prev.size
	}

	s := &span{off: off, size: size}
	heap.Push(&fl.classes[sizeClass(size)], s)
	fl.byOff[off] = s
	fl.endIdx[off+size] = s
}

func (fl *freeList) remove(s *span) {
	heap.Remove(&fl.classes[sizeClass(s.size)], s.heapIndex)
	delete(fl.byOff, s.off)
	delete(fl.endIdx, s.off+s.size)
}
