package shredder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarRoundTrip(t *testing.T) {
	require.Equal(t, 0, LiveAllocationCount())

	h, v := TrackWithDestructor(Leaf[int]{Value: 7})
	assert.Equal(t, 7, v.Value)

	DropHandle(h)
	Collect()
	SynchronizeDestructors()

	assert.Equal(t, 0, LiveAllocationCount())
}

type graphNode struct {
	label string
	edges []*Handle
}

func (n graphNode) Scan(visit func(*Handle)) {
	for _, e := range n.edges {
		visit(e)
	}
}

func TestCyclicGraphRoundTrip(t *testing.T) {
	require.Equal(t, 0, LiveAllocationCount())

	ha, pa := TrackWithDestructor(graphNode{label: "A"})
	hb, pb := TrackWithDestructor(graphNode{label: "B"})

	// Close the cycle: A -> B -> A, using cloned handles so the cycle
	// doesn't depend on (and outlive) the outer handles below.
	pa.edges = append(pa.edges, hb.Clone())
	pb.edges = append(pb.edges, ha.Clone())

	DropHandle(ha)
	DropHandle(hb)

	Collect()
	SynchronizeDestructors()

	assert.Equal(t, 0, LiveAllocationCount(), "a reference cycle with no external handles must still be reclaimed")
}

func TestInUseElision(t *testing.T) {
	require.Equal(t, 0, LiveAllocationCount())

	hh, _ := TrackWithDestructor(Leaf[int]{Value: 1})
	hd, pd := TrackWithDestructor(graphNode{label: "decoy"})
	hr, pr := TrackWithDestructor(graphNode{label: "root"})

	pd.edges = append(pd.edges, hh.Clone())
	pr.edges = append(pr.edges, hh.Clone())

	DropHandle(hh)
	DropHandle(hd)

	warrant := hr.Warrant()

	Collect()
	SynchronizeDestructors()
	assert.Equal(t, 2, LiveAllocationCount(), "root and the hidden node it reaches should survive while root is in use")

	warrant.Release()
	DropHandle(hr)

	Collect()
	SynchronizeDestructors()
	assert.Equal(t, 0, LiveAllocationCount())
}

type destructorProbe struct {
	log *[]string
}

func (d destructorProbe) Scan(func(*Handle)) {}
func (d destructorProbe) Destroy()           { *d.log = append(*d.log, "dropped") }
func (d destructorProbe) Finalize()          { *d.log = append(*d.log, "finalized") }

func TestDestructorFires(t *testing.T) {
	require.Equal(t, 0, LiveAllocationCount())

	var log []string
	h, _ := TrackWithDestructor(destructorProbe{log: &log})
	DropHandle(h)

	Collect()
	SynchronizeDestructors()

	assert.Equal(t, []string{"dropped"}, log)
	assert.Equal(t, 0, LiveAllocationCount())
}

func TestFinalizerPolicy(t *testing.T) {
	require.Equal(t, 0, LiveAllocationCount())

	var log []string
	h, _ := TrackWithFinalizer(destructorProbe{log: &log})
	DropHandle(h)

	Collect()
	SynchronizeDestructors()

	assert.Equal(t, []string{"finalized"}, log)
}

func TestNoDestructorPolicy(t *testing.T) {
	require.Equal(t, 0, LiveAllocationCount())

	var log []string
	h, _ := TrackWithNoDestructor(destructorProbe{log: &log})
	DropHandle(h)

	Collect()
	SynchronizeDestructors()

	assert.Empty(t, log, "no-destructor policy must not run Destroy or Finalize")
	assert.Equal(t, 0, LiveAllocationCount())
}

func TestCloneThenDropNRestoresHandleCount(t *testing.T) {
	require.Equal(t, 0, LiveAllocationCount())

	h, _ := TrackWithDestructor(Leaf[int]{Value: 42})
	before := LiveHandleCount()

	clones := make([]*Handle, 10)
	for i := range clones {
		clones[i] = h.Clone()
	}
	assert.Equal(t, before+len(clones), LiveHandleCount())

	for _, c := range clones {
		c.Drop()
	}
	assert.Equal(t, before, LiveHandleCount())

	h.Drop()
	Collect()
	SynchronizeDestructors()
	assert.Equal(t, 0, LiveAllocationCount())
}

func TestClonedHandleMustBeRegistered(t *testing.T) {
	require.Equal(t, 0, LiveAllocationCount())

	h, _ := TrackWithDestructor(Leaf[int]{Value: 1})
	h.Drop()

	assert.Panics(t, func() {
		h.Clone()
	}, "cloning a handle no longer in the registry must fail loudly")

	Collect()
	SynchronizeDestructors()
	assert.Equal(t, 0, LiveAllocationCount())
}

func TestWarrantForReclaimedAllocationPanics(t *testing.T) {
	require.Equal(t, 0, LiveAllocationCount())

	h, _ := TrackWithDestructor(Leaf[int]{Value: 1})
	h.Drop()
	Collect()
	SynchronizeDestructors()

	assert.Panics(t, func() {
		h.Warrant()
	}, "accessing a reclaimed handle must fail loudly")
}

func TestTraversalYieldsOnlyRegisteredHandles(t *testing.T) {
	require.Equal(t, 0, LiveAllocationCount())

	ha, _ := TrackWithDestructor(graphNode{label: "A"})
	hb, pb := TrackWithDestructor(graphNode{label: "B"})
	pb.edges = append(pb.edges, ha.Clone())

	c := defaultCollector()
	c.registryMu.RLock()
	for _, h := range c.handles {
		_, ok := c.allocations[h.alloc.id]
		assert.True(t, ok, "every registered handle must reference a registered allocation")
	}
	for _, a := range c.allocations {
		a.traverse(func(h *Handle) {
			_, ok := c.allocations[h.alloc.id]
			assert.True(t, ok, "traversal must only yield handles into registered allocations")
		})
	}
	c.registryMu.RUnlock()

	ha.Drop()
	hb.Drop()
	Collect()
	SynchronizeDestructors()
	assert.Equal(t, 0, LiveAllocationCount())
}

func TestLastMarkedAndLastNonRootedNeverExceedCollectionNumber(t *testing.T) {
	require.Equal(t, 0, LiveAllocationCount())

	h, _ := TrackWithDestructor(Leaf[int]{Value: 1})
	Collect()

	c := defaultCollector()
	c.registryMu.RLock()
	current := c.collectionNumber
	for _, h := range c.handles {
		assert.LessOrEqual(t, h.lastNonRooted.Load(), current)
	}
	for _, a := range c.allocations {
		assert.LessOrEqual(t, a.lastMarked.Load(), current)
	}
	c.registryMu.RUnlock()

	h.Drop()
	Collect()
	SynchronizeDestructors()
}
