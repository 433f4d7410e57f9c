package shredder

import (
	"sync/atomic"

	"github.com/seanchen1991/shredder/lockout"
)

// allocation is the tagged, type-erased record the registry keeps for
// every tracked value: an owning closure over the value plus a traversal
// thunk and a destruction thunk, so the mark/sweep engine and the
// dropper can operate on heterogeneous tracked types through one
// concrete Go type.
type allocation struct {
	id          uint64
	lockout     *lockout.Lockout
	traverse    func(visit func(*Handle))
	destroyFn   func()
	deallocated atomic.Bool
	lastMarked  atomic.Uint64
}

// MarkDeallocated implements dropper.Droppable. Setting this flag before
// Destroy runs lets a mutator that still (illegally) holds a stale handle
// fail loudly instead of reading freed memory.
func (a *allocation) MarkDeallocated() {
	a.deallocated.Store(true)
}

// Destroy implements dropper.Droppable.
func (a *allocation) Destroy() {
	a.destroyFn()
}

// Handle is a live reference from mutator code into the managed heap —
// the unit of reachability the mark algorithm operates on. It is opaque:
// callers get one back from TrackWith* and pass it to CloneHandle,
// DropHandle and WarrantFor (or their method equivalents below).
type Handle struct {
	id            uint64
	alloc         *allocation
	lockout       *lockout.Lockout
	lastNonRooted atomic.Uint64
}

// Clone is equivalent to CloneHandle(h).
func (h *Handle) Clone() *Handle { return CloneHandle(h) }

// Drop is equivalent to DropHandle(h).
func (h *Handle) Drop() { DropHandle(h) }

// Warrant is equivalent to WarrantFor(h).
func (h *Handle) Warrant() *lockout.Warrant { return WarrantFor(h) }
