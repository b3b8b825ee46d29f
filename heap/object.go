package heap

// ---------------------------------------------------------------------------
// Object header and type descriptors
// ---------------------------------------------------------------------------

// Generation partitions the heap for the collector. Objects start Young and
// are promoted to Old after surviving a configured number of minor
// collections.
type Generation uint8

const (
	Young Generation = iota
	Old
)

func (g Generation) String() string {
	if g == Old {
		return "old"
	}
	return "young"
}

// color is the tri-color mark state used only during collection. Outside a
// collection every live object is White.
type color uint8

const (
	white color = iota // unvisited
	gray               // discovered, referents pending
	black              // fully scanned
)

// TypeID identifies a registered runtime type. ID 0 is invalid; TypeTensor
// is reserved for the built-in tensor variant.
type TypeID uint16

const (
	invalidType TypeID = 0
	// TypeTensor is the built-in buffer-owning object variant.
	TypeTensor TypeID = 1

	firstUserType TypeID = 2
)

// header is the per-object metadata the pool stores for every table entry.
type header struct {
	refcount  uint32
	tag       uint16 // handle tag; bumped on free to invalidate stale Refs
	typeID    TypeID
	gen       Generation
	mark      color
	survivals uint8 // minor collections survived while Young
	class     int8  // size-class index; classLarge for oversize slot arrays
	alive     bool
	condemned bool // queued for collector free during a sweep
}

// object is one entry in the pool's object table: a header plus either a
// slot payload (plain objects) or a tensor payload. The two variants share
// the header and are dispatched by typeID, not by interface dispatch, so
// the collector never depends on hidden layout.
type object struct {
	hdr    header
	slots  []Value
	tensor *tensorMeta
}

// Type descriptors. The front end registers a type per class/struct it
// lowers; the slot count fixes the object's size class. Redefining a type's
// layout bumps the heap's layout generation, which invalidates compiled
// code that assumed the old layout.

// TypeInfo describes a registered type.
type TypeInfo struct {
	ID    TypeID
	Name  string
	Slots int
}

// typeTable maps names to descriptors. Single-threaded like the rest of the
// runtime; no locking.
type typeTable struct {
	byID   []TypeInfo // index = TypeID
	byName map[string]TypeID
}

func newTypeTable() *typeTable {
	t := &typeTable{
		byID:   make([]TypeInfo, firstUserType),
		byName: make(map[string]TypeID),
	}
	t.byID[TypeTensor] = TypeInfo{ID: TypeTensor, Name: "tensor"}
	t.byName["tensor"] = TypeTensor
	return t
}

// RegisterType registers a named type with the given slot count and returns
// its ID. Registering an existing name returns the existing ID unchanged.
func (h *Heap) RegisterType(name string, slots int) TypeID {
	if id, ok := h.types.byName[name]; ok {
		return id
	}
	id := TypeID(len(h.types.byID))
	h.types.byID = append(h.types.byID, TypeInfo{ID: id, Name: name, Slots: slots})
	h.types.byName[name] = id
	return id
}

// TypeByName looks up a registered type ID, returning 0 if unknown.
func (h *Heap) TypeByName(name string) TypeID {
	return h.types.byName[name]
}

// TypeInfo returns the descriptor for a type ID.
func (h *Heap) TypeInfo(id TypeID) TypeInfo {
	if int(id) >= len(h.types.byID) {
		return TypeInfo{}
	}
	return h.types.byID[id]
}

// RedefineType changes the slot count of a registered type. Existing objects
// keep their old storage; the layout generation is bumped so the JIT cache
// drops entries compiled against the previous layout.
func (h *Heap) RedefineType(id TypeID, slots int) {
	if int(id) >= len(h.types.byID) || id < firstUserType {
		violate("RedefineType", "unknown type id %d", id)
	}
	h.types.byID[id].Slots = slots
	h.layoutGen++
	if h.onLayoutChange != nil {
		h.onLayoutChange(id)
	}
}

// LayoutGen returns the current layout generation. Compiled-code entries
// record the generation they were compiled under and are invalid once it
// moves.
func (h *Heap) LayoutGen() uint64 { return h.layoutGen }
