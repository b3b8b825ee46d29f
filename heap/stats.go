package heap

import "time"

// Stats holds heap counters. Volumes are in the pool's accounting units;
// durations cover the most recent collection of each kind.
type Stats struct {
	Allocations uint64
	Frees       uint64
	BufferFrees uint64

	HeapBytes  int // small-object volume currently live
	LargeBytes int // direct-path volume (tensor buffers, oversize arrays)
	YoungBytes int
	OldBytes   int

	MinorCollections  uint64
	MajorCollections  uint64
	Promotions        uint64
	LastMinorFreed    int
	LastMajorFreed    int
	LastMinorDuration time.Duration
	LastMajorDuration time.Duration

	BarrierEntries int
	LiveObjects    int
}

// Stats returns a snapshot of the heap's counters.
func (h *Heap) Stats() Stats {
	s := h.stats
	s.HeapBytes = h.pool.heapBytes
	s.LargeBytes = h.pool.largeBytes
	s.YoungBytes = h.youngBytes
	s.OldBytes = h.oldBytes
	s.BarrierEntries = h.barrier.len()
	for i := range h.pool.objects {
		if h.pool.objects[i].hdr.alive {
			s.LiveObjects++
		}
	}
	return s
}
