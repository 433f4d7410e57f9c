package shredder

import (
	"sync"
	"sync/atomic"

	"github.com/seanchen1991/shredder/internal/dropper"
	"github.com/seanchen1991/shredder/internal/trigger"
	"github.com/seanchen1991/shredder/lockout"
	"golang.org/x/sync/errgroup"
)

// Collector is the tracked-object registry plus everything that operates
// on it: the mark/sweep engine, the trigger heuristic, the background
// dropper, and the async trigger loop. There is exactly one live
// Collector per process; see defaultCollector.
type Collector struct {
	idCounter atomic.Uint64

	// gcLock serializes collections; it is held across the whole of
	// doCollect's phases, independent of registryMu, so that Collect
	// and CheckThenCollect from different mutator goroutines never run
	// concurrently with each other or with the async trigger loop.
	gcLock sync.Mutex

	// registryMu guards collectionNumber, allocations and handles. It's
	// a RWMutex so LiveAllocationCount/LiveHandleCount stay cheap; every
	// mutation (track/clone/drop, and the whole of a collection) takes
	// the write side.
	registryMu       sync.RWMutex
	collectionNumber uint64
	allocations      map[uint64]*allocation
	handles          map[uint64]*Handle

	trig    *trigger.Trigger
	dropper *dropper.Dropper
	notify  chan struct{}
	group   *errgroup.Group
}

func newCollector() *Collector {
	tuneRuntime()

	c := &Collector{
		collectionNumber: 1,
		allocations:      make(map[uint64]*allocation),
		handles:          make(map[uint64]*Handle),
		trig:             trigger.New(),
		dropper:          dropper.New(*log()),
		notify:           make(chan struct{}, 1),
		group:            &errgroup.Group{},
	}
	c.idCounter.Store(1)

	c.group.Go(c.dropper.Run)
	c.group.Go(c.runAsyncTriggerLoop)
	go func() {
		if err := c.group.Wait(); err != nil {
			log().Error().Err(err).Msg("a background gc/dropper thread terminated abnormally")
		}
	}()

	return c
}

var collectorOnce = sync.OnceValue(newCollector)

func defaultCollector() *Collector {
	return collectorOnce()
}

func (c *Collector) nextID() uint64 {
	return c.idCounter.Add(1)
}

// runAsyncTriggerLoop is the async trigger loop: it waits on the
// coalescing notification channel and invokes check-then-collect on
// receipt. Since the collector is a process-wide singleton with no
// explicit teardown, this loop simply runs for the life of the process —
// there is no weak reference to upgrade or fail to upgrade.
func (c *Collector) runAsyncTriggerLoop() (err error) {
	defer func() {
		if r := recover(); r != nil {
			log().Error().Interface("panic", r).Msg("async gc trigger loop panicked")
		}
	}()
	for range c.notify {
		c.checkThenCollect()
	}
	return nil
}

// notifyAsyncGC performs a non-blocking, coalescing send: if a wakeup is
// already pending, this is a no-op.
func (c *Collector) notifyAsyncGC() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func trackValue[T Scan](c *Collector, v T, policy destructionPolicy) (*Handle, *T) {
	ptr := new(T)
	*ptr = v

	lo := lockout.New()
	alloc := &allocation{
		lockout: lo,
		traverse: func(visit func(*Handle)) {
			(*ptr).Scan(visit)
		},
		destroyFn: buildDestroyFn(ptr, policy),
	}

	c.registryMu.Lock()
	alloc.id = c.nextID()
	c.allocations[alloc.id] = alloc

	h := &Handle{
		id:      c.nextID(),
		alloc:   alloc,
		lockout: lo,
	}
	c.handles[h.id] = h
	c.registryMu.Unlock()

	c.notifyAsyncGC()

	return h, ptr
}

// TrackWithDestructor allocates v in the managed heap. When it is
// reclaimed, its Destroy method runs (if it implements Destroyer); v must
// be safe to keep alive indefinitely, including past the scope it was
// created in.
func TrackWithDestructor[T Scan](v T) (*Handle, *T) {
	return trackValue(defaultCollector(), v, policyDestructor)
}

// TrackWithNoDestructor allocates v in the managed heap without ever
// running cleanup on reclamation.
func TrackWithNoDestructor[T Scan](v T) (*Handle, *T) {
	return trackValue(defaultCollector(), v, policyNone)
}

// TrackWithFinalizer allocates v in the managed heap. When it is
// reclaimed, its Finalize method runs (if it implements Finalizer)
// instead of Destroy.
func TrackWithFinalizer[T Scan](v T) (*Handle, *T) {
	return trackValue(defaultCollector(), v, policyFinalizer)
}

// CloneHandle mints a new handle referencing the same allocation as h.
// It panics if h is not currently registered — h was already dropped, or
// was removed by a sweep (as when it is cloned from inside its own
// allocation's destructor or finalizer); either is programmer misuse.
func CloneHandle(h *Handle) *Handle {
	return defaultCollector().cloneHandle(h)
}

func (c *Collector) cloneHandle(h *Handle) *Handle {
	c.registryMu.Lock()
	defer c.registryMu.Unlock()

	if _, ok := c.handles[h.id]; !ok {
		failMisuse("cloned a handle that is not registered; are you touching it from inside a destructor?")
	}

	nh := &Handle{
		id:      c.nextID(),
		alloc:   h.alloc,
		lockout: h.lockout,
	}
	c.handles[nh.id] = nh
	return nh
}

// DropHandle removes h from the registry. It never triggers a
// collection directly: doing so during handle-drop of a reclaimed
// allocation would re-enter the dropper.
func DropHandle(h *Handle) {
	defaultCollector().dropHandle(h)
}

func (c *Collector) dropHandle(h *Handle) {
	c.registryMu.Lock()
	defer c.registryMu.Unlock()
	delete(c.handles, h.id)
}

// WarrantFor acquires a shared warrant on h's allocation, for the
// duration of a mutator read. It panics if the allocation has already
// been reclaimed (touching a handle from inside its own destructor).
// This path never takes the registry lock, so it stays cheap.
func WarrantFor(h *Handle) *lockout.Warrant {
	return defaultCollector().warrantFor(h)
}

func (c *Collector) warrantFor(h *Handle) *lockout.Warrant {
	if h.alloc.deallocated.Load() {
		failMisuse("accessed a handle whose allocation has already been reclaimed")
	}
	return h.lockout.AcquireShared()
}

// LiveAllocationCount returns the number of allocations currently in the
// registry.
func LiveAllocationCount() int {
	return defaultCollector().liveAllocationCount()
}

func (c *Collector) liveAllocationCount() int {
	c.registryMu.RLock()
	defer c.registryMu.RUnlock()
	return len(c.allocations)
}

// LiveHandleCount returns the number of handles currently in the
// registry.
func LiveHandleCount() int {
	return defaultCollector().liveHandleCount()
}

func (c *Collector) liveHandleCount() int {
	c.registryMu.RLock()
	defer c.registryMu.RUnlock()
	return len(c.handles)
}

// SetTriggerPercent updates the growth factor the trigger heuristic uses
// to decide when a collection is warranted.
func SetTriggerPercent(percent float64) {
	defaultCollector().trig.SetPercent(percent)
}

// SynchronizeDestructors blocks until every destruction enqueued to the
// background dropper so far has completed.
func SynchronizeDestructors() {
	defaultCollector().dropper.Sync()
}

// Collect runs a collection unconditionally.
func Collect() {
	defaultCollector().collect()
}

func (c *Collector) collect() {
	c.gcLock.Lock()
	defer c.gcLock.Unlock()

	c.registryMu.Lock()
	defer c.registryMu.Unlock()

	c.doCollect()
}

// CheckThenCollect runs a collection only if the trigger heuristic
// indicates one is warranted, and reports whether it did.
func CheckThenCollect() bool {
	return defaultCollector().checkThenCollect()
}

func (c *Collector) checkThenCollect() bool {
	c.gcLock.Lock()
	defer c.gcLock.Unlock()

	c.registryMu.RLock()
	count := len(c.allocations)
	shouldCollect := c.trig.ShouldCollect(count)
	c.registryMu.RUnlock()

	if !shouldCollect {
		return false
	}

	c.registryMu.Lock()
	defer c.registryMu.Unlock()
	c.doCollect()
	return true
}
