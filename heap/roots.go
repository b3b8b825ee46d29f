package heap

// ---------------------------------------------------------------------------
// Root set tracker
// ---------------------------------------------------------------------------
//
// The ordered sequence of live bindings the collector treats as always
// reachable: call-frame locals currently in scope plus global/module
// bindings. Frames bracket calls; bindings enter on frame push or
// assignment and leave on frame pop, rebinding, or drop. Binding and
// unbinding go through the refcount contract, so scope exit is exactly a
// release.

type binding struct {
	name string
	val  Value
}

// frame holds one call's locals plus anonymous temporaries the interpreter
// pins while an expression is being built (a fresh object with no named
// binding yet must not be swept by a collection triggered mid-expression).
type frame struct {
	bindings []binding
	index    map[string]int
	temps    []Value
}

type rootSet struct {
	frames  []*frame
	globals []binding
	gindex  map[string]int
}

func (rs *rootSet) init() {
	rs.gindex = make(map[string]int)
}

func (rs *rootSet) current() *frame {
	if len(rs.frames) == 0 {
		return nil
	}
	return rs.frames[len(rs.frames)-1]
}

// PushFrame opens a call frame. Every PushFrame must be paired with a
// PopFrame.
func (h *Heap) PushFrame() {
	h.roots.frames = append(h.roots.frames, &frame{index: make(map[string]int)})
}

// PopFrame closes the current frame, releasing every binding and temporary
// in reverse binding order.
func (h *Heap) PopFrame() {
	f := h.roots.current()
	if f == nil {
		violate("PopFrame", "frame underflow")
	}
	h.roots.frames = h.roots.frames[:len(h.roots.frames)-1]
	for i := len(f.temps) - 1; i >= 0; i-- {
		h.releaseValue(f.temps[i])
	}
	for i := len(f.bindings) - 1; i >= 0; i-- {
		h.releaseValue(f.bindings[i].val)
	}
}

// Bind binds a name in the current frame, retaining the value. Rebinding
// retains the new value and releases the old one, in that order.
func (h *Heap) Bind(name string, v Value) {
	f := h.roots.current()
	if f == nil {
		violate("Bind", "bind %q with no frame", name)
	}
	h.retainValue(v)
	if i, ok := f.index[name]; ok {
		old := f.bindings[i].val
		f.bindings[i].val = v
		h.releaseValue(old)
		return
	}
	f.index[name] = len(f.bindings)
	f.bindings = append(f.bindings, binding{name: name, val: v})
}

// Lookup reads a binding from the current frame. The value is borrowed.
func (h *Heap) Lookup(name string) (Value, bool) {
	f := h.roots.current()
	if f == nil {
		return Nil, false
	}
	i, ok := f.index[name]
	if !ok {
		return Nil, false
	}
	return f.bindings[i].val, true
}

// Unbind drops a binding from the current frame, releasing its value. The
// tracker never silently drops a still-in-scope binding; dropping an
// unknown name is an InvariantViolation.
func (h *Heap) Unbind(name string) {
	f := h.roots.current()
	if f == nil {
		violate("Unbind", "unbind %q with no frame", name)
	}
	i, ok := f.index[name]
	if !ok {
		violate("Unbind", "unbind of unknown binding %q", name)
	}
	old := f.bindings[i].val
	f.bindings[i].val = Nil
	delete(f.index, name)
	h.releaseValue(old)
}

// PinTemp pins a value in the current frame until PopFrame. The
// interpreter uses it for intermediate results that are not yet bound
// anywhere reachable.
func (h *Heap) PinTemp(v Value) {
	f := h.roots.current()
	if f == nil {
		violate("PinTemp", "pin with no frame")
	}
	h.retainValue(v)
	f.temps = append(f.temps, v)
}

// BindGlobal binds a module-level name, retaining the value.
func (h *Heap) BindGlobal(name string, v Value) {
	h.retainValue(v)
	if i, ok := h.roots.gindex[name]; ok {
		old := h.roots.globals[i].val
		h.roots.globals[i].val = v
		h.releaseValue(old)
		return
	}
	h.roots.gindex[name] = len(h.roots.globals)
	h.roots.globals = append(h.roots.globals, binding{name: name, val: v})
}

// Global reads a module-level binding. The value is borrowed.
func (h *Heap) Global(name string) (Value, bool) {
	i, ok := h.roots.gindex[name]
	if !ok {
		return Nil, false
	}
	return h.roots.globals[i].val, true
}

// UnbindGlobal drops a module-level binding, releasing its value.
func (h *Heap) UnbindGlobal(name string) {
	i, ok := h.roots.gindex[name]
	if !ok {
		return
	}
	old := h.roots.globals[i].val
	h.roots.globals[i].val = Nil
	delete(h.roots.gindex, name)
	h.releaseValue(old)
}

// RootSnapshot returns the full ordered sequence of live object references
// the collector scans from: globals first, then frames outermost to
// innermost, bindings before temporaries within each frame.
func (h *Heap) RootSnapshot() []Ref {
	var refs []Ref
	appendRef := func(v Value) {
		if v.IsRef() {
			refs = append(refs, v.Ref())
		}
	}
	for _, b := range h.roots.globals {
		appendRef(b.val)
	}
	for _, f := range h.roots.frames {
		for _, b := range f.bindings {
			appendRef(b.val)
		}
		for _, t := range f.temps {
			appendRef(t)
		}
	}
	return refs
}

// FrameDepth reports the current call depth. Diagnostics only.
func (h *Heap) FrameDepth() int { return len(h.roots.frames) }
