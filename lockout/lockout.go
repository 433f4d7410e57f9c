// Package lockout implements the reader-writer primitive that mediates
// between mutator access to a tracked value and the collector's need to
// scan it.
//
// It is the same packed-atomic-state-plus-condvar technique used by
// github.com/dijkstracula/go-ilock's intention lock, cut down to the two
// states the collector actually needs: a "warrant" (shared, unbounded,
// held by mutators while reading a value) and an "exclusive warrant" (held
// by the collector while scanning one). The asymmetry that matters is in
// how the two are acquired, not in how many states there are: acquiring a
// warrant blocks until no exclusive warrant is outstanding; acquiring an
// exclusive warrant never blocks — it either succeeds immediately or fails
// immediately, because the collector must never stall behind a mutator.
package lockout

import (
	"sync"
	"sync/atomic"
)

const (
	sharedOffset = 0
	sharedMask   = (uint64(1) << 32) - 1
	exclBit      = uint64(1) << 32
)

func extractShared(state uint64) uint64 {
	return (state & sharedMask) >> sharedOffset
}

func setShared(state, val uint64) uint64 {
	return (state &^ sharedMask) | (val << sharedOffset)
}

func extractExclusive(state uint64) bool {
	return state&exclBit != 0
}

func compatibleWithShared(state uint64) bool {
	return !extractExclusive(state)
}

func compatibleWithExclusive(state uint64) bool {
	return extractShared(state) == 0 && !extractExclusive(state)
}

// Lockout is a shared reference-writer mediator for a single allocation.
// The zero value is not usable; construct with New.
type Lockout struct {
	mu    sync.Mutex
	c     *sync.Cond
	state uint64
}

// New returns a Lockout with no warrants outstanding.
func New() *Lockout {
	l := &Lockout{}
	l.c = sync.NewCond(&l.mu)
	return l
}

// AcquireShared takes a Warrant, blocking only while an exclusive warrant
// is outstanding. It never fails.
func (l *Lockout) AcquireShared() *Warrant {
	l.mu.Lock()
	for !l.registerShared() {
		l.c.Wait()
	}
	l.mu.Unlock()
	return &Warrant{lockout: l}
}

// TryAcquireExclusive attempts to take an ExclusiveWarrant. It never
// blocks: it fails immediately if any warrant (shared or exclusive) is
// currently outstanding, returning (nil, false).
func (l *Lockout) TryAcquireExclusive() (*ExclusiveWarrant, bool) {
	for {
		state := atomic.LoadUint64(&l.state)
		if !compatibleWithExclusive(state) {
			return nil, false
		}
		newState := state | exclBit
		if atomic.CompareAndSwapUint64(&l.state, state, newState) {
			return &ExclusiveWarrant{lockout: l}, true
		}
	}
}

// registerShared adds one shared warrant to the state, in the same CAS that
// confirms no exclusive warrant is held. It reports false, changing
// nothing, if an exclusive warrant is outstanding.
func (l *Lockout) registerShared() bool {
	for {
		state := atomic.LoadUint64(&l.state)
		if !compatibleWithShared(state) {
			return false
		}
		newState := setShared(state, extractShared(state)+1)
		if atomic.CompareAndSwapUint64(&l.state, state, newState) {
			return true
		}
	}
}

func (l *Lockout) releaseShared() {
	var remaining uint64
	for {
		state := atomic.LoadUint64(&l.state)
		remaining = extractShared(state) - 1
		newState := setShared(state, remaining)
		if atomic.CompareAndSwapUint64(&l.state, state, newState) {
			break
		}
	}
	// Exclusive acquisition never waits on the condvar (it's non-blocking),
	// so the only parties ever parked here are other shared acquirers
	// queued up behind an exclusive warrant; wake them once it clears.
	l.mu.Lock()
	l.c.Broadcast()
	l.mu.Unlock()
}

func (l *Lockout) releaseExclusive() {
	for {
		state := atomic.LoadUint64(&l.state)
		newState := state &^ exclBit
		if atomic.CompareAndSwapUint64(&l.state, state, newState) {
			break
		}
	}
	l.mu.Lock()
	l.c.Broadcast()
	l.mu.Unlock()
}

// Warrant is a scope-bound shared lease on an allocation's content, held
// for the duration of a mutator's access to it. Release it when the access
// ends; calls after the first are no-ops.
type Warrant struct {
	lockout  *Lockout
	released bool
	mu       sync.Mutex
}

// Release gives up the warrant. Safe to call more than once; only the
// first call has an effect.
func (w *Warrant) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return
	}
	w.released = true
	w.lockout.releaseShared()
}

// ExclusiveWarrant is a scope-bound exclusive lease on an allocation's
// content, held by the collector while it scans the allocation.
type ExclusiveWarrant struct {
	lockout  *Lockout
	released bool
	mu       sync.Mutex
}

// Release gives up the exclusive warrant. Safe to call more than once;
// only the first call has an effect.
func (w *ExclusiveWarrant) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return
	}
	w.released = true
	w.lockout.releaseExclusive()
}
