// Package ptr is the external, mutator-facing facade over the core
// collector: a thin smart pointer that forwards to shredder's Library
// Surface. It deliberately does no work of its own beyond bookkeeping a
// stable interior pointer alongside the handle it wraps, so access can
// deref without retracing the collector's registry.
package ptr

import (
	"fmt"

	"github.com/seanchen1991/shredder"
)

// Ptr is a managed reference to a T tracked by the collector. The zero
// value is not usable; construct with New, NewNoDestructor or
// NewWithFinalizer.
type Ptr[T shredder.Scan] struct {
	handle *shredder.Handle
	direct *T
}

// New tracks v with the "run destructor" policy: v's Destroy method (if
// it has one) runs when this value is reclaimed.
func New[T shredder.Scan](v T) Ptr[T] {
	h, p := shredder.TrackWithDestructor(v)
	return Ptr[T]{handle: h, direct: p}
}

// NewNoDestructor tracks v without ever running cleanup on reclamation.
func NewNoDestructor[T shredder.Scan](v T) Ptr[T] {
	h, p := shredder.TrackWithNoDestructor(v)
	return Ptr[T]{handle: h, direct: p}
}

// NewWithFinalizer tracks v with the "run finalizer" policy: v's Finalize
// method (if it has one) runs, instead of Destroy, on reclamation.
func NewWithFinalizer[T shredder.Scan](v T) Ptr[T] {
	h, p := shredder.TrackWithFinalizer(v)
	return Ptr[T]{handle: h, direct: p}
}

// Clone mints a new Ptr referencing the same underlying value.
func (p Ptr[T]) Clone() Ptr[T] {
	return Ptr[T]{handle: p.handle.Clone(), direct: p.direct}
}

// Drop releases this Ptr's handle. After Drop, this Ptr must not be used
// again.
func (p Ptr[T]) Drop() {
	p.handle.Drop()
}

// Access returns a Guard that dereferences to the underlying value. The
// Guard holds a shared warrant for its lifetime; release it (defer
// guard.Release()) promptly, since the collector can't scan the value
// while any guard is outstanding.
func (p Ptr[T]) Access() Guard[T] {
	return Guard[T]{ptr: &p, warrant: p.handle.Warrant()}
}

// Guard is a scope-bound read access to a Ptr's underlying value.
type Guard[T shredder.Scan] struct {
	ptr     *Ptr[T]
	warrant interface{ Release() }
}

// Release gives up the warrant backing this Guard.
func (g Guard[T]) Release() {
	g.warrant.Release()
}

// Deref returns the underlying value. It is only valid while the Guard
// has not been released.
func (g Guard[T]) Deref() *T {
	return g.ptr.direct
}

// String forwards to the underlying value's formatting through an access
// guard, matching the facade contract's requirement that equality,
// ordering, hashing and formatting all go through a guard.
func (p Ptr[T]) String() string {
	g := p.Access()
	defer g.Release()
	return fmt.Sprintf("%v", *g.Deref())
}
