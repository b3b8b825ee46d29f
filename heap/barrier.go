package heap

// ---------------------------------------------------------------------------
// Write-barrier log
// ---------------------------------------------------------------------------
//
// An explicit append-only set of (source object, field slot) pairs recorded
// for every store of a Young reference into an Old object. During a minor
// collection the logged slots act as extra roots into the young generation,
// so the collector never rescans the whole old generation. After each minor
// collection the log is rebuilt to exactly the Old->Young edges that still
// exist: entries whose target survived without being promoted stay live,
// everything else (dead sources, promoted or freed targets, overwritten
// slots) is dropped.
//
// Young-to-Old pointers need no recording: minor collections never free Old
// objects.

type barrierEntry struct {
	src  Ref
	slot int
}

type barrierLog struct {
	entries []barrierEntry
	// Dedupe set keyed on the full entry. The handle tag in src keeps a
	// reused table index from shadowing a dead source's entry.
	seen map[barrierEntry]struct{}
}

func (b *barrierLog) init() {
	b.seen = make(map[barrierEntry]struct{})
}

// add records a (source, slot) pair once.
func (b *barrierLog) add(src Ref, slot int) {
	e := barrierEntry{src: src, slot: slot}
	if _, dup := b.seen[e]; dup {
		return
	}
	b.seen[e] = struct{}{}
	b.entries = append(b.entries, e)
}

func (b *barrierLog) len() int { return len(b.entries) }

// BarrierLogLen reports the number of pending write-barrier entries.
// Diagnostics only.
func (h *Heap) BarrierLogLen() int { return h.barrier.len() }
