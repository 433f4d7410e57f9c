package shredder

// doCollect runs one mark/sweep pass. The caller must hold both gcLock
// and registryMu (write) already; doCollect does not acquire or release
// either.
func (c *Collector) doCollect() {
	log().Trace().Msg("beginning collection")

	c.collectionNumber++
	current := c.collectionNumber

	// Phase 1 — in-use detection. Anything we can't get an exclusive
	// warrant for is conservatively marked live right here, and its
	// handles become roots by default in phase 2 (we never scanned it,
	// so we never got the chance to mark its handles "not rooted"). The
	// warrants taken here are held for the rest of the collection (see
	// the release at the bottom of this function) so nothing can shift
	// the graph out from under phases 2-4.
	var warrants []releaser
	for _, alloc := range c.allocations {
		if warrant, ok := alloc.lockout.TryAcquireExclusive(); ok {
			warrants = append(warrants, warrant)
			alloc.traverse(func(h *Handle) {
				h.lastNonRooted.Store(current)
			})
		} else {
			alloc.lastMarked.Store(current)
		}
	}

	// Phase 2 — root set. A handle not observed as an outgoing
	// reference from any scanned allocation this cycle must be held
	// directly by a mutator.
	var roots []*Handle
	for _, h := range c.handles {
		if h.lastNonRooted.Load() != current {
			roots = append(roots, h)
		}
	}

	// Phase 3 — mark DFS. Allocations phase 1 already stamped are
	// skipped; everything else is only reachable (and thus only safe to
	// scan) because it was proven reachable from a root.
	stack := roots
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		a := h.alloc
		if a.lastMarked.Load() == current {
			continue
		}
		a.lastMarked.Store(current)
		a.traverse(func(next *Handle) {
			stack = append(stack, next)
		})
	}

	// Phase 4 — sweep. Anything not marked this cycle is dead: its
	// internal handles are removed before the allocation is handed to
	// the dropper, so a dead subgraph's handles can never survive into
	// another cycle.
	var reclaimed int
	for id, alloc := range c.allocations {
		if alloc.lastMarked.Load() == current {
			continue
		}
		alloc.traverse(func(h *Handle) {
			delete(c.handles, h.id)
		})
		delete(c.allocations, id)
		c.dropper.Enqueue(alloc)
		reclaimed++
	}

	// Phase 5 — trigger update.
	c.trig.RecordPostCollectionCount(len(c.allocations))

	// Only now, with the whole pass finished, do the phase-1 exclusive
	// warrants come off. Nothing in phases 2-4 takes a new warrant;
	// holding these keeps mutators from acquiring a warrant on (and so
	// from changing) any scanned allocation while the DFS and the sweep
	// traverse it.
	for _, w := range warrants {
		w.Release()
	}

	log().Trace().
		Uint64("collection", current).
		Int("reclaimed", reclaimed).
		Int("live_allocations", len(c.allocations)).
		Msg("collection finished")
}

// releaser is satisfied by *lockout.ExclusiveWarrant; kept as a tiny
// local interface so this file doesn't need to import lockout just to
// spell out the slice element type.
type releaser interface {
	Release()
}
