/*
PURPOSE:
  Background CPU load generator for the adaptive run.
  Lets the benchmark observe how the controller reacts when the host
  running the target server gets busy, and how it recovers afterwards.

REQUIREMENTS:
  User-specified:
  - Load starts at a configured step and lasts a fixed duration.
  - Steps are tagged load while it runs and recovery after it ends.

  Implementation-discovered:
  - The measurement loop only needs a yes/no answer, so the single piece
    of shared state is an atomic flag.
  - Workers must notice cancellation quickly without a syscall per loop.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go (RunMode)

ERROR HANDLING:
  - None. The load cannot fail; it ends on timeout or cancellation.

IMPLEMENTATION RULES:
  - Never block the measurement loop: StartLoad returns immediately.
  - Wait() before a mode completes so no workers leak into the next mode.

RELATED FILES:
  - internal/engine/runner.go
*/

package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LoadHandle controls a running background CPU load. The only state shared
// with the measurement loop is the active flag.
type LoadHandle struct {
	active atomic.Bool
	wg     sync.WaitGroup
}

// StartLoad busies workers goroutines with a deterministic arithmetic loop
// until d elapses or ctx is done. The handle reports Active
// from the moment StartLoad returns.
func StartLoad(ctx context.Context, d time.Duration, workers int) *LoadHandle {
	if workers < 1 {
		workers = 1
	}
	runCtx, cancel := context.WithTimeout(ctx, d)
	h := &LoadHandle{}
	h.active.Store(true)

	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(seed uint64) {
			defer h.wg.Done()
			burn(runCtx, seed)
		}(uint64(i) + 1)
	}

	go func() {
		h.wg.Wait()
		h.active.Store(false)
		cancel()
	}()

	return h
}

// Active reports whether the load is still running.
func (h *LoadHandle) Active() bool {
	return h.active.Load()
}

// Wait blocks until every worker has exited.
func (h *LoadHandle) Wait() {
	h.wg.Wait()
	// the watcher goroutine may not have cleared the flag yet
	h.active.Store(false)
}

// burn runs an xorshift loop, checking for cancellation every 64k rounds.
func burn(ctx context.Context, x uint64) uint64 {
	for {
		for i := 0; i < 1<<16; i++ {
			x ^= x << 13
			x ^= x >> 7
			x ^= x << 17
		}
		select {
		case <-ctx.Done():
			return x
		default:
		}
	}
}
