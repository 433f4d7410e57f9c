package lockout

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSharedSharedCompatible(t *testing.T) {
	l := New()
	w1 := l.AcquireShared()
	w2 := l.AcquireShared()
	w1.Release()
	w2.Release()
}

func TestExclusiveExcludesShared(t *testing.T) {
	l := New()
	x, ok := l.TryAcquireExclusive()
	assert.True(t, ok, "exclusive warrant should succeed on a fresh lockout")

	done := make(chan struct{})
	go func() {
		l.AcquireShared()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("shared acquisition should have blocked behind the exclusive warrant")
	case <-time.After(50 * time.Millisecond):
	}

	x.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shared acquisition should have unblocked after the exclusive warrant was released")
	}
}

func TestTryExclusiveFailsUnderShared(t *testing.T) {
	l := New()
	w := l.AcquireShared()

	_, ok := l.TryAcquireExclusive()
	assert.False(t, ok, "exclusive warrant must not be grantable while a shared warrant is outstanding")

	w.Release()

	x, ok := l.TryAcquireExclusive()
	assert.True(t, ok, "exclusive warrant should succeed once shared warrants have drained")
	x.Release()
}

func TestTryExclusiveFailsUnderExclusive(t *testing.T) {
	l := New()
	x1, ok := l.TryAcquireExclusive()
	assert.True(t, ok)

	_, ok = l.TryAcquireExclusive()
	assert.False(t, ok, "exclusive warrants must be mutually exclusive")

	x1.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	l := New()
	w := l.AcquireShared()
	w.Release()
	w.Release()

	x, ok := l.TryAcquireExclusive()
	assert.True(t, ok)
	x.Release()
	x.Release()
}

// TestConcurrentSharedFanOut mirrors the teacher's benchmarkLocking shape:
// many goroutines racing to take shared warrants while periodic exclusive
// attempts are made, verifying the two never overlap.
func TestConcurrentSharedFanOut(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	var exclusiveHeld int32
	var mu sync.Mutex

	const concurrency = 50
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				w := l.AcquireShared()
				mu.Lock()
				held := exclusiveHeld
				mu.Unlock()
				assert.Equal(t, int32(0), held, "shared warrant held while exclusive was active")
				w.Release()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			if x, ok := l.TryAcquireExclusive(); ok {
				mu.Lock()
				exclusiveHeld = 1
				mu.Unlock()
				mu.Lock()
				exclusiveHeld = 0
				mu.Unlock()
				x.Release()
			}
		}
	}()

	wg.Wait()
}
