// Package trigger implements the heuristic that decides when the
// collector should run a collection, based on how the live allocation
// count has grown since the last one.
package trigger

import (
	"math"
	"sync/atomic"
)

// DefaultPercent is the growth factor used when a Trigger is constructed
// with New: a collection is indicated once the live allocation count has
// grown by more than this fraction since the last collection.
const DefaultPercent = 0.75

// minGrowthFloor stops the trigger from firing on every single allocation
// when the live count is small (e.g. going from 1 to 2 allocations is a
// 100% increase, but collecting on every other allocate would be thrash).
const minGrowthFloor = 32

// Trigger is lock-free: readers may observe a slightly stale baseline.
// The collector's check-then-collect path consults it while holding the
// collector's gc lock, and the baseline is only updated by a collection
// running under that same lock.
type Trigger struct {
	percentBits     atomic.Uint64
	lastCollectionN atomic.Int64
}

// New returns a Trigger using DefaultPercent.
func New() *Trigger {
	t := &Trigger{}
	t.SetPercent(DefaultPercent)
	return t
}

// SetPercent updates the growth factor used by ShouldCollect.
func (t *Trigger) SetPercent(percent float64) {
	t.percentBits.Store(math.Float64bits(percent))
}

// Percent returns the current growth factor.
func (t *Trigger) Percent() float64 {
	return math.Float64frombits(t.percentBits.Load())
}

// ShouldCollect reports whether a collection is indicated given the
// current number of live allocations.
func (t *Trigger) ShouldCollect(currentCount int) bool {
	percent := t.Percent()
	last := t.lastCollectionN.Load()
	threshold := float64(last) * (1 + percent)
	floor := last + minGrowthFloor
	if threshold < float64(floor) {
		threshold = float64(floor)
	}
	return float64(currentCount) > threshold
}

// RecordPostCollectionCount stores the live allocation count observed
// immediately after a collection finished, establishing the new baseline.
func (t *Trigger) RecordPostCollectionCount(n int) {
	t.lastCollectionN.Store(int64(n))
}
