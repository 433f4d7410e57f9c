// Package dropper implements the single-threaded background worker that
// destroys reclaimed allocations. Destruction is isolated onto its own
// goroutine because a user's destructor or finalizer may be arbitrarily
// slow, may panic, or may re-enter the collector (e.g. by dropping another
// handle) — running it on the GC thread would stall every mutator.
package dropper

import (
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Droppable is anything the dropper can reclaim: an allocation that has
// been swept and needs its "deallocated" flag set before its destructor
// or finalizer (or nothing, for the no-op policy) runs.
type Droppable interface {
	// MarkDeallocated flips the allocation's deallocated flag. It is
	// called strictly before Destroy, so that a mutator racing a stale
	// handle observes the flag before it could ever read freed memory.
	MarkDeallocated()
	// Destroy runs the allocation's chosen destruction thunk.
	Destroy()
}

// queueCapacity is large enough that, in practice, the dropper never
// applies backpressure to the sweep phase that feeds it — sweep enqueues
// are expected to drain faster than they arrive under any realistic
// workload. It is not unbounded (Go channels can't be): once this many
// messages are pending, Enqueue and Sync block until the worker frees a
// slot. A full queue is not reported as an error.
const queueCapacity = 1 << 16

// errQueueClosed is the sentinel behind every failed send to the queue.
var errQueueClosed = errors.New("dropper: send on a closed queue")

type message struct {
	item Droppable
	ack  chan struct{}
}

// Dropper is a FIFO-ordered, serial destructor. The zero value is not
// usable; construct with New.
type Dropper struct {
	queue chan message
	log   zerolog.Logger
}

// New returns a Dropper whose worker has not yet been started; call Run
// (typically via an errgroup.Group.Go) to start processing messages.
func New(log zerolog.Logger) *Dropper {
	return &Dropper{
		queue: make(chan message, queueCapacity),
		log:   log,
	}
}

// Run processes messages until the queue channel is closed, which in this
// collector's lifetime (a process-wide singleton with no explicit
// teardown) never happens in practice. It always returns nil; panics are
// recovered per message in process, and Run itself recovers nothing.
func (d *Dropper) Run() error {
	for msg := range d.queue {
		if msg.ack != nil {
			close(msg.ack)
			continue
		}
		d.process(msg.item)
	}
	return nil
}

func (d *Dropper) process(item Droppable) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Msg("destructor panicked; allocation is still reclaimed")
		}
	}()
	item.MarkDeallocated()
	item.Destroy()
}

// Enqueue asks the dropper to reclaim item. It does not wait for item's
// destructor to run, only for a free slot in the queue (see
// queueCapacity). The send fails only if the queue channel has been
// closed; that is logged and otherwise ignored — the allocation simply
// leaks rather than corrupting state.
func (d *Dropper) Enqueue(item Droppable) {
	if err := d.send(message{item: item}); err != nil {
		d.log.Warn().Err(err).Msg("failed to enqueue allocation for destruction")
	}
}

// Sync blocks until every message enqueued before this call has been
// processed. It establishes a happens-before barrier: callers that need
// "every drop enqueued so far has completed" (e.g. deterministic tests)
// use this instead of polling.
func (d *Dropper) Sync() {
	ack := make(chan struct{})
	if err := d.send(message{ack: ack}); err != nil {
		d.log.Warn().Err(err).Msg("failed to enqueue destructor sync barrier")
		return
	}
	<-ack
}

func (d *Dropper) send(msg message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(errQueueClosed, "%v", r)
		}
	}()
	d.queue <- msg
	return nil
}
