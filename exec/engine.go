// Package exec is the execution engine adapter: the boundary where the
// front end's calls meet the memory core. A call resolves a specialization
// key from its arguments, consults the JIT function cache, pushes a
// root-set frame covering the arguments and locals, executes compiled code
// or the interpreter, pops the frame, and hands the caller a retained
// result. Every call is a potential collection-trigger point.
package exec

import (
	"errors"
	"fmt"
	"time"

	"github.com/tliron/commonlog"

	"github.com/pluslang/pluspy/heap"
	"github.com/pluslang/pluspy/ir"
	"github.com/pluslang/pluspy/jit"
)

// Options configures an Engine.
type Options struct {
	// JIT enables the compiled path. When false every call interprets.
	JIT bool
}

// Engine executes guest functions against a heap.
type Engine struct {
	heap     *heap.Heap
	cache    *jit.Cache
	funcs    map[ir.FuncID]*ir.Function
	profiler *Profiler
	useJIT   bool
	log      commonlog.Logger

	// fatal is set after an InvariantViolation aborts a call; the engine
	// refuses further execution rather than continuing on a possibly
	// corrupt heap.
	fatal error
}

// New constructs an engine over a heap and a function cache.
func New(h *heap.Heap, cache *jit.Cache, opts Options) *Engine {
	return &Engine{
		heap:     h,
		cache:    cache,
		funcs:    make(map[ir.FuncID]*ir.Function),
		profiler: NewProfiler(),
		useJIT:   opts.JIT,
		log:      commonlog.GetLogger("pluspy.exec"),
	}
}

// Heap returns the engine's heap.
func (e *Engine) Heap() *heap.Heap { return e.heap }

// Profiler returns the engine's call profiler.
func (e *Engine) Profiler() *Profiler { return e.profiler }

// Register makes a function callable. The front end registers every
// function it lowers before emitting calls to it.
func (e *Engine) Register(fn *ir.Function) {
	e.funcs[fn.ID] = fn
}

// Call invokes a function with the given arguments. On success the caller
// owns a retained reference to the result and is responsible for releasing
// it (or binding it somewhere reachable). Recoverable errors such as
// allocation failure or shape mismatches return with the runtime intact;
// an InvariantViolation poisons the engine.
func (e *Engine) Call(fnID ir.FuncID, args []heap.Value) (result heap.Value, err error) {
	if e.fatal != nil {
		return heap.Nil, e.fatal
	}
	fn, ok := e.funcs[fnID]
	if !ok {
		return heap.Nil, fmt.Errorf("exec: call to unregistered function %d", fnID)
	}
	if len(args) != len(fn.Params) {
		return heap.Nil, fmt.Errorf("exec: %s called with %d args, want %d", fn.Name, len(args), len(fn.Params))
	}

	defer func() {
		if r := recover(); r != nil {
			iv, ok := r.(*heap.InvariantViolation)
			if !ok {
				panic(r)
			}
			e.fatal = iv
			e.log.Criticalf("execution halted: %s", iv.Error())
			result, err = heap.Nil, iv
		}
	}()

	start := time.Now()
	e.heap.MaybeCollect()

	// Root-set frame covering args and locals for the duration of the
	// call.
	e.heap.PushFrame()
	defer e.heap.PopFrame()
	for i, p := range fn.Params {
		e.heap.Bind(p, args[i])
	}

	compiled := false
	if e.useJIT {
		key := jit.Key{Fn: fnID, Spec: jit.SpecOf(e.heap, args)}
		entry, cerr := e.cache.LookupOrCompile(key, fn)
		switch {
		case cerr == nil:
			result, err = entry.Fn(args)
			compiled = true
		case errors.Is(cerr, jit.ErrCompilationUnsupported):
			// Fall back to interpretation for this call.
		default:
			return heap.Nil, cerr
		}
	}
	if !compiled {
		result, err = e.eval(fn.Body)
	}
	if err != nil {
		return heap.Nil, err
	}

	// The caller owns the result: retain before the frame pins go away.
	if result.IsRef() {
		e.heap.Retain(result.Ref())
	}
	e.profiler.Record(fnID, fn.Name, compiled, time.Since(start))
	return result, nil
}

// Warm precompiles the given keys for functions that are registered,
// typically the store's hot list from a previous run. Unsupported keys are
// skipped silently; they will interpret as before.
func (e *Engine) Warm(keys []jit.Key) int {
	warmed := 0
	for _, k := range keys {
		fn, ok := e.funcs[k.Fn]
		if !ok {
			continue
		}
		if _, err := e.cache.LookupOrCompile(k, fn); err == nil {
			warmed++
		}
	}
	return warmed
}
