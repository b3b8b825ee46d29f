package heap

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Heap snapshots
// ---------------------------------------------------------------------------
//
// A snapshot is a CBOR dump of the live object graph plus counters, for
// postmortem inspection of a runtime's memory state. Canonical encoding
// keeps snapshots of identical heaps byte-identical.

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("heap: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// SnapshotObject is one live object in a snapshot. Slots holds packed
// handle payloads for reference slots and zero for scalars; TensorShape is
// set only for tensor objects.
type SnapshotObject struct {
	Index      uint32   `cbor:"1,keyasint"`
	Type       string   `cbor:"2,keyasint"`
	Generation string   `cbor:"3,keyasint"`
	Refcount   uint32   `cbor:"4,keyasint"`
	Refs       []uint32 `cbor:"5,keyasint,omitempty"`
	TensorShape []int   `cbor:"6,keyasint,omitempty"`
	BufferBytes int     `cbor:"7,keyasint,omitempty"`
}

// Snapshot is a full dump of a heap's live state.
type Snapshot struct {
	Objects []SnapshotObject `cbor:"1,keyasint"`
	Roots   []uint32         `cbor:"2,keyasint"`
	Stats   Stats            `cbor:"3,keyasint"`
}

// Snapshot captures the current live object graph.
func (h *Heap) Snapshot() *Snapshot {
	snap := &Snapshot{Stats: h.Stats()}
	for idx := range h.pool.objects {
		o := &h.pool.objects[idx]
		if !o.hdr.alive {
			continue
		}
		rec := SnapshotObject{
			Index:      uint32(idx),
			Type:       h.TypeInfo(o.hdr.typeID).Name,
			Generation: o.hdr.gen.String(),
			Refcount:   o.hdr.refcount,
		}
		for _, v := range o.slots {
			if v.IsRef() {
				rec.Refs = append(rec.Refs, v.Ref().Index())
			}
		}
		if o.tensor != nil {
			rec.TensorShape = append([]int(nil), o.tensor.shape...)
			rec.BufferBytes = len(o.tensor.buf.data)
		}
		snap.Objects = append(snap.Objects, rec)
	}
	for _, r := range h.RootSnapshot() {
		snap.Roots = append(snap.Roots, r.Index())
	}
	return snap
}

// MarshalSnapshot serializes a snapshot to canonical CBOR.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("heap: unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// WriteSnapshot captures the heap and writes it to a file.
func (h *Heap) WriteSnapshot(path string) error {
	data, err := MarshalSnapshot(h.Snapshot())
	if err != nil {
		return fmt.Errorf("heap: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("heap: write snapshot: %w", err)
	}
	return nil
}
