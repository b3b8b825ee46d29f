package jit

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/pluslang/pluspy/heap"
	"github.com/pluslang/pluspy/ir"
)

// ErrCompilationUnsupported is reported when a function uses constructs the
// compiler does not handle. It is never fatal: the execution engine falls
// back to the interpreted path for that call.
var ErrCompilationUnsupported = errors.New("jit: compilation unsupported")

// CompiledFn is a native entry point: a function specialized to the
// argument kinds its key describes.
type CompiledFn func(args []heap.Value) (heap.Value, error)

// Entry is a cached compiled function. Entries are immutable once
// installed; invalidation replaces them, never mutates them.
type Entry struct {
	Key        Key
	Fn         CompiledFn
	LayoutGen  uint64 // cache layout generation at compile time
	CompiledAt time.Time
}

// CacheStats counts cache activity.
type CacheStats struct {
	Hits          uint64
	Misses        uint64
	Compilations  uint64
	Failures      uint64
	Evictions     uint64
	Invalidations uint64
}

// DefaultCapacity is the default LRU capacity.
const DefaultCapacity = 256

// Options configures a Cache.
type Options struct {
	// Capacity bounds the number of cached entries; the least recently
	// used entry is evicted past it. <=0 means DefaultCapacity.
	Capacity int

	// Store, when non-nil, receives compile records for cross-run
	// profiling. Failures to record are logged, never propagated.
	Store *Store

	// Compile overrides the compiler; nil means the built-in closure
	// compiler. Tests use this to observe compilation counts.
	Compile func(fn *ir.Function, key Key) (CompiledFn, error)
}

type inflight struct {
	done chan struct{}
	err  error
}

// Cache is the JIT function cache. The runtime proper is single-threaded,
// but lookups may be re-entered (a compilation hook observing the cache)
// and tests exercise concurrent lookups, so the cache carries its own lock
// and single-flight bookkeeping.
type Cache struct {
	mu          sync.Mutex
	capacity    int
	entries     map[Key]*list.Element // of *Entry
	lru         *list.List            // front = most recently used
	inflight    map[Key]*inflight
	unsupported map[Key]struct{}
	layoutGen   uint64
	compile     func(fn *ir.Function, key Key) (CompiledFn, error)
	store       *Store
	stats       CacheStats
	log         commonlog.Logger
}

// NewCache constructs a function cache.
func NewCache(opts Options) *Cache {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	compile := opts.Compile
	if compile == nil {
		compile = Compile
	}
	return &Cache{
		capacity:    opts.Capacity,
		entries:     make(map[Key]*list.Element),
		lru:         list.New(),
		inflight:    make(map[Key]*inflight),
		unsupported: make(map[Key]struct{}),
		compile:     compile,
		store:       opts.Store,
		log:         commonlog.GetLogger("pluspy.jit"),
	}
}

// LookupOrCompile returns the cached entry for key, compiling it exactly
// once on a miss. A lookup arriving while the same key is compiling blocks
// until that compilation finishes and then retries, so no key ever has two
// compilations in flight. Entries compiled under an older layout
// generation are treated as misses and replaced.
func (c *Cache) LookupOrCompile(key Key, fn *ir.Function) (*Entry, error) {
	for {
		c.mu.Lock()
		if _, bad := c.unsupported[key]; bad {
			c.mu.Unlock()
			return nil, ErrCompilationUnsupported
		}
		if el, ok := c.entries[key]; ok {
			e := el.Value.(*Entry)
			if e.LayoutGen == c.layoutGen {
				c.lru.MoveToFront(el)
				c.stats.Hits++
				c.mu.Unlock()
				return e, nil
			}
			// Compiled against a layout that no longer holds.
			c.removeLocked(key, el)
			c.stats.Invalidations++
		}
		if fl, ok := c.inflight[key]; ok {
			c.mu.Unlock()
			<-fl.done
			if fl.err != nil {
				return nil, fl.err
			}
			continue // revalidate through the normal lookup path
		}

		c.stats.Misses++
		fl := &inflight{done: make(chan struct{})}
		c.inflight[key] = fl
		gen := c.layoutGen
		c.mu.Unlock()

		start := time.Now()
		compiled, err := c.compile(fn, key)

		c.mu.Lock()
		delete(c.inflight, key)
		if err != nil {
			c.stats.Failures++
			if errors.Is(err, ErrCompilationUnsupported) {
				c.unsupported[key] = struct{}{}
			}
			fl.err = err
			close(fl.done)
			c.mu.Unlock()
			return nil, err
		}

		e := &Entry{Key: key, Fn: compiled, LayoutGen: gen, CompiledAt: time.Now()}
		c.entries[key] = c.lru.PushFront(e)
		c.stats.Compilations++
		for c.lru.Len() > c.capacity {
			back := c.lru.Back()
			victim := back.Value.(*Entry)
			c.removeLocked(victim.Key, back)
			c.stats.Evictions++
		}
		close(fl.done)
		c.mu.Unlock()

		c.log.Debugf("compiled %s in %s", key, time.Since(start))
		if c.store != nil {
			if serr := c.store.RecordCompile(key, time.Since(start), gen); serr != nil {
				c.log.Errorf("jit store: %s", serr.Error())
			}
		}
		return e, nil
	}
}

// removeLocked drops an entry. Callers hold c.mu.
func (c *Cache) removeLocked(key Key, el *list.Element) {
	c.lru.Remove(el)
	delete(c.entries, key)
}

// LayoutChanged is the heap's layout-change hook: entries compiled before
// the change assumed an object layout that no longer holds and must not be
// executed again. The whole generation is retired; entries are replaced
// lazily on their next lookup.
func (c *Cache) LayoutChanged(heap.TypeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layoutGen++
	// Unsupported verdicts may also depend on layout; let them retry.
	clear(c.unsupported)
}

// Len returns the number of cached entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns a copy of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
