// pluspy CLI - assembles the runtime and runs a workload against it
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/pluslang/pluspy/config"
	"github.com/pluslang/pluspy/exec"
	"github.com/pluslang/pluspy/heap"
	"github.com/pluslang/pluspy/ir"
	"github.com/pluslang/pluspy/jit"
)

func main() {
	verbosity := flag.Int("v", 0, "Log verbosity (0=errors, 1=info, 2=debug)")
	configDir := flag.String("c", ".", "Directory to search for pluspy.toml")
	noJIT := flag.Bool("no-jit", false, "Disable the function cache; interpret everything")
	showStats := flag.Bool("stats", false, "Print heap and cache statistics on exit")
	snapshotPath := flag.String("snapshot", "", "Write a CBOR heap snapshot to this path on exit")
	iterations := flag.Int("n", 100000, "Iterations for the demo workload")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ppy [options]\n\n")
		fmt.Fprintf(os.Stderr, "Runs the demo workload against the pluspy runtime core.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.FindAndLoad(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbosity == 0 {
		*verbosity = cfg.Log.Verbosity
	}
	commonlog.Configure(*verbosity, nil)

	rt, err := assemble(cfg, !*noJIT)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rt.close()

	entry := registerDemo(rt.engine)
	warm(rt, cfg)

	if err := runDemo(rt.engine, entry, *iterations); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *showStats {
		printStats(rt)
	}
	if *snapshotPath != "" {
		if err := rt.heap.WriteSnapshot(*snapshotPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Snapshot written to %s\n", *snapshotPath)
	}
}

// runtime bundles the assembled components.
type runtime struct {
	heap   *heap.Heap
	cache  *jit.Cache
	store  *jit.Store
	engine *exec.Engine
}

func (rt *runtime) close() {
	if rt.store != nil {
		rt.store.Close()
	}
}

// assemble wires heap, store, cache, and engine together: the heap's
// layout-change hook invalidates the cache, and the cache's compile records
// flow into the store.
func assemble(cfg *config.Config, useJIT bool) (*runtime, error) {
	rt := &runtime{}

	var err error
	if path := cfg.ProfilePath(); path != "" {
		if rt.store, err = jit.OpenStore(path); err != nil {
			return nil, err
		}
	}

	rt.cache = jit.NewCache(jit.Options{
		Capacity: cfg.JIT.CacheCapacity,
		Store:    rt.store,
	})

	opts := cfg.HeapOptions()
	opts.OnLayoutChange = rt.cache.LayoutChanged
	rt.heap = heap.New(opts)

	rt.engine = exec.New(rt.heap, rt.cache, exec.Options{JIT: useJIT && cfg.JIT.Enabled})
	return rt, nil
}

// warm precompiles last run's hottest specializations, if a store is
// configured. Called after functions are registered.
func warm(rt *runtime, cfg *config.Config) {
	if rt.store == nil || cfg.JIT.WarmHotKeys <= 0 {
		return
	}
	keys, err := rt.store.HotKeys(cfg.JIT.WarmHotKeys)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: reading hot keys: %v\n", err)
		return
	}
	rt.engine.Warm(keys)
}

// registerDemo installs a small guest program: a scalar-only sum loop that
// the function cache compiles, and a tensor pipeline that stays on the
// interpreted path. Returns the entry function's ID.
func registerDemo(e *exec.Engine) ir.FuncID {
	// sum(n): while-loop accumulation, compilable.
	sum := &ir.Function{
		ID:     1,
		Name:   "sum",
		Params: []string{"n"},
		Body: ir.Seq{Exprs: []ir.Node{
			ir.Assign{Name: "acc", Expr: ir.IntLit{Value: 0}},
			ir.Assign{Name: "i", Expr: ir.IntLit{Value: 0}},
			ir.While{
				Cond: ir.BinOp{Op: ir.OpLt, Left: ir.Local{Name: "i"}, Right: ir.Local{Name: "n"}},
				Body: ir.Seq{Exprs: []ir.Node{
					ir.Assign{Name: "acc", Expr: ir.BinOp{Op: ir.OpAdd, Left: ir.Local{Name: "acc"}, Right: ir.Local{Name: "i"}}},
					ir.Assign{Name: "i", Expr: ir.BinOp{Op: ir.OpAdd, Left: ir.Local{Name: "i"}, Right: ir.IntLit{Value: 1}}},
				}},
			},
			ir.Local{Name: "acc"},
		}},
	}
	// outer(n): allocates tensors, multiplies them, then runs the sum loop.
	outer := &ir.Function{
		ID:     2,
		Name:   "outer",
		Params: []string{"n"},
		Body: ir.Seq{Exprs: []ir.Node{
			ir.Assign{Name: "a", Expr: ir.TensorFill{
				Tensor: ir.NewTensor{Shape: []int{8, 8}, Dtype: "float64"},
				Value:  ir.FloatLit{Value: 2},
			}},
			ir.Assign{Name: "b", Expr: ir.TensorFill{
				Tensor: ir.NewTensor{Shape: []int{8, 8}, Dtype: "float64"},
				Value:  ir.FloatLit{Value: 3},
			}},
			ir.Assign{Name: "c", Expr: ir.BinOp{Op: ir.OpMatMul, Left: ir.Local{Name: "a"}, Right: ir.Local{Name: "b"}}},
			ir.Call{Fn: 1, Args: []ir.Node{ir.Local{Name: "n"}}},
		}},
	}
	e.Register(sum)
	e.Register(outer)
	return outer.ID
}

func runDemo(e *exec.Engine, entry ir.FuncID, n int) error {
	res, err := e.Call(entry, []heap.Value{heap.FromSmallInt(int64(n))})
	if err != nil {
		return err
	}
	if res.IsSmallInt() {
		fmt.Printf("sum(0..%d) = %d\n", n, res.SmallInt())
	}
	return nil
}

func printStats(rt *runtime) {
	hs := rt.heap.Stats()
	fmt.Printf("heap: %d allocations, %d frees, %d live objects\n", hs.Allocations, hs.Frees, hs.LiveObjects)
	fmt.Printf("      young %d B, old %d B, large %d B\n", hs.YoungBytes, hs.OldBytes, hs.LargeBytes)
	fmt.Printf("      %d minor collections (last freed %d), %d major (last freed %d), %d promotions\n",
		hs.MinorCollections, hs.LastMinorFreed, hs.MajorCollections, hs.LastMajorFreed, hs.Promotions)

	cs := rt.cache.Stats()
	fmt.Printf("jit:  %d hits, %d misses, %d compilations, %d evictions, %d invalidations\n",
		cs.Hits, cs.Misses, cs.Compilations, cs.Evictions, cs.Invalidations)

	for _, fp := range rt.engine.Profiler().Snapshot() {
		fmt.Printf("fn:   %-12s %8d calls (%d compiled) %12s\n", fp.Name, fp.Calls, fp.Compiled, fp.Total)
	}
}
