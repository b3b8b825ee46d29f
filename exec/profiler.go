package exec

import (
	"sort"
	"time"

	"github.com/pluslang/pluspy/ir"
)

// FuncProfile aggregates the calls observed for one function.
type FuncProfile struct {
	Fn       ir.FuncID
	Name     string
	Calls    uint64
	Compiled uint64 // calls served by the compiled path
	Total    time.Duration
}

// Profiler counts calls per function. It feeds the stats surface and, via
// the JIT store, warm-up decisions on the next run.
type Profiler struct {
	funcs map[ir.FuncID]*FuncProfile
}

func NewProfiler() *Profiler {
	return &Profiler{funcs: make(map[ir.FuncID]*FuncProfile)}
}

// Record notes one completed call.
func (p *Profiler) Record(fn ir.FuncID, name string, compiled bool, d time.Duration) {
	fp, ok := p.funcs[fn]
	if !ok {
		fp = &FuncProfile{Fn: fn, Name: name}
		p.funcs[fn] = fp
	}
	fp.Calls++
	if compiled {
		fp.Compiled++
	}
	fp.Total += d
}

// Snapshot returns per-function profiles ordered by call count, busiest
// first.
func (p *Profiler) Snapshot() []FuncProfile {
	out := make([]FuncProfile, 0, len(p.funcs))
	for _, fp := range p.funcs {
		out = append(out, *fp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Calls != out[j].Calls {
			return out[i].Calls > out[j].Calls
		}
		return out[i].Fn < out[j].Fn
	})
	return out
}
