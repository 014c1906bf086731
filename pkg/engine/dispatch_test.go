package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestModelDispatcherBoundsConcurrency(t *testing.T) {
	const limit = 2
	const calls = 8

	d := NewModelDispatcher(limit)

	var inFlight int32
	var maxObserved int32
	var wg sync.WaitGroup

	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Call(func() {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&maxObserved)
					if n <= old || atomic.CompareAndSwapInt32(&maxObserved, old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
			})
		}()
	}
	wg.Wait()

	if maxObserved > limit {
		t.Fatalf("observed %d concurrent calls, dispatcher limit was %d", maxObserved, limit)
	}
}

func TestModelDispatcherCallBlocksUntilDone(t *testing.T) {
	d := NewModelDispatcher(1)
	var ran bool
	d.Call(func() { ran = true })
	if !ran {
		t.Fatal("Call must block until fn has actually run")
	}
}

func TestNewModelDispatcherClampsLimit(t *testing.T) {
	// A non-positive limit must not panic or deadlock; it should behave as
	// limit=1.
	d := NewModelDispatcher(0)
	done := make(chan struct{})
	d.Call(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher with limit<1 deadlocked instead of clamping to 1")
	}
}
